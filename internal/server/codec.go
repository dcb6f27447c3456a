package server

import (
	json "github.com/goccy/go-json"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the API ("application/grpc+json").
const CodecName = "json"

// jsonCodec carries the API's plain Go messages as JSON, since the services are not generated from protobuf.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

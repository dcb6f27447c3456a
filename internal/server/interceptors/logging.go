package interceptors

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Method is a gRPC full method name split into its parts.
type Method struct {
	Service string
	Name    string
}

// ParseFullMethod splits a full method (e.g. /pmt.v1.TaskService/EditTask) into the short service
// name ("TaskService") and the method name. Malformed input yields "unknown" parts.
func ParseFullMethod(fullMethod string) Method {
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return Method{Service: "unknown", Name: "unknown"}
	}
	name := fullMethod[slash+1:]
	if name == "" {
		name = "unknown"
	}
	service := strings.TrimPrefix(fullMethod[:slash], "/")
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	return Method{Service: service, Name: name}
}

// LoggingUnary returns a unary server interceptor that logs one entry per RPC after it completes.
// Server-side failures log at error level and client errors at warn. skipMethods are not logged.
func LoggingUnary(log logrus.FieldLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		m := ParseFullMethod(info.FullMethod)
		code := status.Code(err)
		entry := log.WithFields(logrus.Fields{
			"service":     m.Service,
			"method":      m.Name,
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   ClientIP(ctx),
		})
		if userID, ok := UserIDFrom(ctx); ok {
			entry = entry.WithField("user_id", userID)
		}
		switch code {
		case codes.OK:
			entry.Info("rpc")
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			entry.WithError(err).Error("rpc")
		default:
			entry.WithError(err).Warn("rpc")
		}
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

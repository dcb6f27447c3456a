package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"pmt/backend/internal/security"
)

const bearerPrefix = "bearer "

// Authenticator resolves a bearer token to the caller. The user service implements it,
// checking the signature and the revocation store.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*security.Identity, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token from gRPC
// metadata and puts the caller's identity in the context.
// publicMethods is the set of full method names that do not require a token (Register, Login, health).
// A public method called with a bad token still runs, anonymously.
func AuthUnary(auth Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" || auth == nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		id, err := auth.Authenticate(ctx, token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		return handler(WithIdentity(ctx, id, token), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

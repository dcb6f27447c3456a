// Package server assembles the gRPC server: the user, project and task services, the standard
// health service, and the auth and logging interceptors.
package server

import (
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pmt/backend/internal/server/interceptors"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// PublicMethods are callable without a bearer token.
var PublicMethods = map[string]bool{
	"/" + UserServiceName + "/Register": true,
	"/" + UserServiceName + "/Login":    true,
	healthCheckMethod:                   true,
	"/grpc.health.v1.Health/Watch":      true,
	"/grpc.health.v1.Health/List":       true,
}

// Deps holds what the gRPC server needs.
type Deps struct {
	API *API
	// Auth validates bearer tokens. If nil, only PublicMethods can be called.
	Auth interceptors.Authenticator
	// Health is the health service whose statuses the readiness checker maintains. If nil, one is created.
	Health *health.Server
	Log    logrus.FieldLogger
}

// NewServer returns a gRPC server with every service registered.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(deps.Log, map[string]bool{healthCheckMethod: true}),
			interceptors.AuthUnary(deps.Auth, PublicMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the API services and the health service.
//
// Service → implementation:
//   - pmt.v1.UserService    → internal/user/service
//   - pmt.v1.ProjectService → internal/project/service
//   - pmt.v1.TaskService    → internal/task/service
//   - grpc.health.v1.Health → internal/health (readiness)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.API != nil {
		s.RegisterService(&UserServiceDesc, deps.API)
		s.RegisterService(&ProjectServiceDesc, deps.API)
		s.RegisterService(&TaskServiceDesc, deps.API)
	}
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}

// ServiceNames lists the API services, for health reporting.
func ServiceNames() []string {
	return []string{UserServiceName, ProjectServiceName, TaskServiceName}
}

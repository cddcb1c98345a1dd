package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	devhandler "health-portal/backend/internal/devotp/handler"
	identityhandler "health-portal/backend/internal/identity/handler"
	identityservice "health-portal/backend/internal/identity/service"
	"health-portal/backend/internal/server/interceptors"
)

// HealthCheckMethod is the unary grpc.health.v1 method, public and kept out of the access log.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds the service dependencies for gRPC handlers.
type Deps struct {
	// Auth backs IdentityService and the auth interceptor. If nil, IdentityService is not registered.
	Auth *identityservice.AuthService
	// Health is the grpc.health.v1 server updated by the readiness checker. If nil, health is not registered.
	Health *grpchealth.Server
	// DevOutbox backs the dev-only DevService (GetCode). If nil, DevService is not registered.
	// Set only when OTP_RETURN_TO_CLIENT is enabled and not production.
	DevOutbox devhandler.Outbox
}

// RegisterServices registers the portal gRPC services with the given server.
//
// Service → handler mapping:
//   - IdentityService → internal/identity/handler
//   - DevService      → internal/devotp/handler
//   - grpc.health.v1  → google.golang.org/grpc/health (driven by internal/health)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Auth != nil {
		identityhandler.RegisterIdentityServiceServer(s, identityhandler.NewServer(deps.Auth))
	}
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
	if deps.DevOutbox != nil {
		devhandler.RegisterDevServiceServer(s, devhandler.NewServer(deps.DevOutbox))
	}
}

// PublicMethods returns the full method names callable without a session token.
func PublicMethods(deps Deps) map[string]bool {
	public := map[string]bool{HealthCheckMethod: true}
	for m := range identityhandler.PublicMethods {
		public[m] = true
	}
	if deps.DevOutbox != nil {
		for m := range devhandler.PublicMethods {
			public[m] = true
		}
	}
	return public
}

// NewServer returns a gRPC server with tracing and metrics (otelgrpc), access logging and
// bearer-token authentication, with every service from deps registered.
// deps.Auth must be set.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AccessLogUnary(map[string]bool{HealthCheckMethod: true}),
			interceptors.AuthUnary(deps.Auth, PublicMethods(deps), identityhandler.AdminMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

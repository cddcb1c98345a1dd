package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	accountdomain "health-portal/backend/internal/account/domain"
	"health-portal/backend/internal/rpc"
)

const bearerPrefix = "bearer "

// Authenticator resolves a bearer session token to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*accountdomain.PublicAccount, error)
}

// AuthUnary returns a unary server interceptor that resolves the Bearer session token
// from gRPC metadata and puts the account in context for protected RPCs.
// publicMethods is the set of full method names that do not require a token (registration,
// login, password reset, health). adminMethods additionally require the admin role.
// On public methods a missing or bad token is ignored.
func AuthUnary(auth Authenticator, publicMethods, adminMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		account, err := auth.Authenticate(ctx, token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, rpc.Error(ctx, err)
		}
		if adminMethods[info.FullMethod] && account.Role != accountdomain.RoleAdmin {
			return nil, status.Error(codes.PermissionDenied, "admin role required")
		}

		ctx = WithAccount(ctx, *account)
		return handler(ctx, req)
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

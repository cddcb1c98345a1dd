// Package handler implements the dev-only gRPC DevService (GetCode).
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountdomain "health-portal/backend/internal/account/domain"
	challengedomain "health-portal/backend/internal/challenge/domain"
	"health-portal/backend/internal/rpc"
)

const (
	ServiceName = "portal.dev.v1.DevService"
	devCodeNote = "DEV MODE ONLY"
)

// Outbox is where delivered codes can be read back from. notify.DevOutbox implements it.
type Outbox interface {
	Latest(to string, purpose challengedomain.Purpose) (string, bool)
}

type GetCodeRequest struct {
	Email   string                  `json:"email"`
	Purpose challengedomain.Purpose `json:"purpose"`
}

type GetCodeResponse struct {
	Code string `json:"code"`
	Note string `json:"note"`
}

// DevServiceServer is the server API for DevService.
type DevServiceServer interface {
	GetCode(context.Context, *GetCodeRequest) (*GetCodeResponse, error)
}

// Server implements DevService. Only registered when OTP_RETURN_TO_CLIENT is set outside production.
type Server struct {
	outbox Outbox
}

// NewServer returns a DevService server that reads codes from outbox.
func NewServer(outbox Outbox) *Server {
	return &Server{outbox: outbox}
}

// GetCode returns the last code sent to email for purpose. Returns NotFound if missing or expired.
func (s *Server) GetCode(ctx context.Context, req *GetCodeRequest) (*GetCodeResponse, error) {
	email := accountdomain.NormalizeEmail(req.Email)
	if email == "" {
		return nil, status.Error(codes.InvalidArgument, "email is required")
	}
	if !req.Purpose.Valid() {
		return nil, status.Error(codes.InvalidArgument, "unknown purpose")
	}
	if s.outbox == nil {
		return nil, status.Error(codes.NotFound, "code not found or expired")
	}
	code, ok := s.outbox.Latest(email, req.Purpose)
	if !ok {
		return nil, status.Error(codes.NotFound, "code not found or expired")
	}
	return &GetCodeResponse{Code: code, Note: devCodeNote}, nil
}

// RegisterDevServiceServer adds srv to r.
func RegisterDevServiceServer(r grpc.ServiceRegistrar, srv DevServiceServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// PublicMethods are callable without a session token.
var PublicMethods = map[string]bool{
	rpc.FullMethod(ServiceName, "GetCode"): true,
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DevServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetCode", DevServiceServer.GetCode),
	},
	Metadata: "portal/dev/v1/dev.proto",
}

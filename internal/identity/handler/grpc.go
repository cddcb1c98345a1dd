// Package handler exposes the identity flows as the gRPC IdentityService.
//
// Messages are plain structs encoded with the rpc JSON codec. Register, login and password
// reset are public; profile changes and Me need a session token; SetStatus needs an admin.
package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountdomain "health-portal/backend/internal/account/domain"
	challengedomain "health-portal/backend/internal/challenge/domain"
	"health-portal/backend/internal/identity/service"
	"health-portal/backend/internal/rpc"
	"health-portal/backend/internal/server/interceptors"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "portal.identity.v1.IdentityService"

type PendingCode struct {
	Purpose   challengedomain.Purpose `json:"purpose"`
	ExpiresAt time.Time               `json:"expires_at"`
}

type RegisterRequest struct {
	Username string             `json:"username"`
	Email    string             `json:"email"`
	Phone    string             `json:"phone"`
	Password string             `json:"password"`
	Role     accountdomain.Role `json:"role,omitempty"`
}

type RegisterResponse struct {
	Account accountdomain.PublicAccount `json:"account"`
	Code    PendingCode                 `json:"code"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type CodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

type AccountResponse struct {
	Account accountdomain.PublicAccount `json:"account"`
}

type SessionResponse struct {
	Token     string                      `json:"token"`
	ExpiresAt time.Time                   `json:"expires_at"`
	Account   accountdomain.PublicAccount `json:"account"`
}

type UpdateProfileRequest struct {
	Changes accountdomain.ProfileChanges `json:"changes"`
}

type UpdateProfileResponse struct {
	Applied bool                        `json:"applied"`
	Account accountdomain.PublicAccount `json:"account"`
	Code    *PendingCode                `json:"code,omitempty"`
}

type VerifyProfileUpdateRequest struct {
	Code string `json:"code"`
}

type SetStatusRequest struct {
	AccountID string               `json:"account_id"`
	Status    accountdomain.Status `json:"status"`
}

type Empty struct{}

// IdentityServiceServer is the server API for IdentityService.
type IdentityServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	RequestRegistrationCode(context.Context, *EmailRequest) (*PendingCode, error)
	VerifyRegistration(context.Context, *CodeRequest) (*AccountResponse, error)
	LoginStart(context.Context, *CredentialsRequest) (*PendingCode, error)
	LoginVerify(context.Context, *CodeRequest) (*SessionResponse, error)
	Login(context.Context, *CredentialsRequest) (*SessionResponse, error)
	RequestPasswordReset(context.Context, *EmailRequest) (*PendingCode, error)
	VerifyPasswordReset(context.Context, *CodeRequest) (*Empty, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*Empty, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error)
	VerifyProfileUpdate(context.Context, *VerifyProfileUpdateRequest) (*AccountResponse, error)
	Me(context.Context, *Empty) (*AccountResponse, error)
	SetStatus(context.Context, *SetStatusRequest) (*AccountResponse, error)
}

// RegisterIdentityServiceServer adds srv to r.
func RegisterIdentityServiceServer(r grpc.ServiceRegistrar, srv IdentityServiceServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// Server implements IdentityService on top of AuthService.
type Server struct {
	auth *service.AuthService
}

// NewServer returns an IdentityService server backed by auth.
func NewServer(auth *service.AuthService) *Server {
	return &Server{auth: auth}
}

func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	res, err := s.auth.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return &RegisterResponse{Account: res.Account, Code: pendingCode(res.Code)}, nil
}

func (s *Server) RequestRegistrationCode(ctx context.Context, req *EmailRequest) (*PendingCode, error) {
	pc, err := s.auth.RequestRegistrationOTP(ctx, req.Email)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	out := pendingCode(*pc)
	return &out, nil
}

func (s *Server) VerifyRegistration(ctx context.Context, req *CodeRequest) (*AccountResponse, error) {
	a, err := s.auth.VerifyRegistration(ctx, req.Email, req.Code)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return &AccountResponse{Account: *a}, nil
}

func (s *Server) LoginStart(ctx context.Context, req *CredentialsRequest) (*PendingCode, error) {
	pc, err := s.auth.LoginStart(ctx, req.Email, req.Password)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	out := pendingCode(*pc)
	return &out, nil
}

func (s *Server) LoginVerify(ctx context.Context, req *CodeRequest) (*SessionResponse, error) {
	res, err := s.auth.LoginVerify(ctx, req.Email, req.Code)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return session(res), nil
}

func (s *Server) Login(ctx context.Context, req *CredentialsRequest) (*SessionResponse, error) {
	res, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return session(res), nil
}

func (s *Server) RequestPasswordReset(ctx context.Context, req *EmailRequest) (*PendingCode, error) {
	pc, err := s.auth.RequestPasswordReset(ctx, req.Email)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	out := pendingCode(*pc)
	return &out, nil
}

func (s *Server) VerifyPasswordReset(ctx context.Context, req *CodeRequest) (*Empty, error) {
	if err := s.auth.VerifyPasswordReset(ctx, req.Email, req.Code); err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*Empty, error) {
	if err := s.auth.ResetPassword(ctx, req.Email, req.NewPassword); err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	id, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.auth.RequestProfileUpdate(ctx, id, req.Changes)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	out := &UpdateProfileResponse{Applied: res.Applied, Account: res.Account}
	if res.Code != nil {
		pc := pendingCode(*res.Code)
		out.Code = &pc
	}
	return out, nil
}

func (s *Server) VerifyProfileUpdate(ctx context.Context, req *VerifyProfileUpdateRequest) (*AccountResponse, error) {
	id, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.auth.VerifyProfileUpdate(ctx, id, req.Code)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return &AccountResponse{Account: *a}, nil
}

// Me returns the caller's account as resolved by the auth interceptor.
func (s *Server) Me(ctx context.Context, _ *Empty) (*AccountResponse, error) {
	a, ok := interceptors.AccountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	return &AccountResponse{Account: a}, nil
}

func (s *Server) SetStatus(ctx context.Context, req *SetStatusRequest) (*AccountResponse, error) {
	if req.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id is required")
	}
	a, err := s.auth.SetStatus(ctx, req.AccountID, req.Status)
	if err != nil {
		return nil, rpc.Error(ctx, err)
	}
	return &AccountResponse{Account: *a}, nil
}

func callerID(ctx context.Context) (string, error) {
	id := interceptors.AccountID(ctx)
	if id == "" {
		return "", status.Error(codes.Unauthenticated, "not authenticated")
	}
	return id, nil
}

func pendingCode(pc service.PendingCode) PendingCode {
	return PendingCode{Purpose: pc.Purpose, ExpiresAt: pc.ExpiresAt}
}

func session(res *service.AuthResult) *SessionResponse {
	return &SessionResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, Account: res.Account}
}

// PublicMethods are the full method names callable without a session token.
var PublicMethods = map[string]bool{
	rpc.FullMethod(ServiceName, "Register"):                true,
	rpc.FullMethod(ServiceName, "RequestRegistrationCode"): true,
	rpc.FullMethod(ServiceName, "VerifyRegistration"):      true,
	rpc.FullMethod(ServiceName, "LoginStart"):              true,
	rpc.FullMethod(ServiceName, "LoginVerify"):             true,
	rpc.FullMethod(ServiceName, "Login"):                   true,
	rpc.FullMethod(ServiceName, "RequestPasswordReset"):    true,
	rpc.FullMethod(ServiceName, "VerifyPasswordReset"):     true,
	rpc.FullMethod(ServiceName, "ResetPassword"):           true,
}

// AdminMethods require the admin role.
var AdminMethods = map[string]bool{
	rpc.FullMethod(ServiceName, "SetStatus"): true,
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "Register", IdentityServiceServer.Register),
		rpc.Unary(ServiceName, "RequestRegistrationCode", IdentityServiceServer.RequestRegistrationCode),
		rpc.Unary(ServiceName, "VerifyRegistration", IdentityServiceServer.VerifyRegistration),
		rpc.Unary(ServiceName, "LoginStart", IdentityServiceServer.LoginStart),
		rpc.Unary(ServiceName, "LoginVerify", IdentityServiceServer.LoginVerify),
		rpc.Unary(ServiceName, "Login", IdentityServiceServer.Login),
		rpc.Unary(ServiceName, "RequestPasswordReset", IdentityServiceServer.RequestPasswordReset),
		rpc.Unary(ServiceName, "VerifyPasswordReset", IdentityServiceServer.VerifyPasswordReset),
		rpc.Unary(ServiceName, "ResetPassword", IdentityServiceServer.ResetPassword),
		rpc.Unary(ServiceName, "UpdateProfile", IdentityServiceServer.UpdateProfile),
		rpc.Unary(ServiceName, "VerifyProfileUpdate", IdentityServiceServer.VerifyProfileUpdate),
		rpc.Unary(ServiceName, "Me", IdentityServiceServer.Me),
		rpc.Unary(ServiceName, "SetStatus", IdentityServiceServer.SetStatus),
	},
	Metadata: "portal/identity/v1/identity.proto",
}

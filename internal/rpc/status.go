package rpc

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"health-portal/backend/internal/autherr"
)

// ErrorKindTrailer carries the autherr kind of a failed call so clients can tell apart
// failures that share a gRPC code (e.g. challenge_expired and account_unverified).
const ErrorKindTrailer = "x-error-kind"

var kindCodes = map[autherr.Kind]codes.Code{
	autherr.KindDuplicateAccount:   codes.AlreadyExists,
	autherr.KindAccountNotFound:    codes.NotFound,
	autherr.KindInvalidCredentials: codes.Unauthenticated,
	autherr.KindAccountInactive:    codes.PermissionDenied,
	autherr.KindAccountUnverified:  codes.FailedPrecondition,
	autherr.KindChallengeNotFound:  codes.NotFound,
	autherr.KindChallengeExpired:   codes.FailedPrecondition,
	autherr.KindCodeMismatch:       codes.InvalidArgument,
	autherr.KindResetNotAuthorized: codes.PermissionDenied,
	autherr.KindTokenInvalid:       codes.Unauthenticated,
	autherr.KindTokenExpired:       codes.Unauthenticated,
	autherr.KindValidation:         codes.InvalidArgument,
	autherr.KindDeliveryFailed:     codes.Unavailable,
}

// Code returns the gRPC code for an identity error kind, or codes.Internal for anything else.
func Code(kind autherr.Kind) codes.Code {
	if c, ok := kindCodes[kind]; ok {
		return c
	}
	return codes.Internal
}

// Error converts err into a gRPC status error. Identity errors keep their message and report
// their kind in the x-error-kind trailer; other errors are logged and hidden behind "internal error".
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var e *autherr.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.Canceled) {
			return status.Error(codes.Canceled, "request canceled")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, "request deadline exceeded")
		}
		log.Printf("rpc: internal error: %v", err)
		return status.Error(codes.Internal, "internal error")
	}
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorKindTrailer, string(e.Kind)))
	return status.Error(Code(e.Kind), e.Message)
}

// Kind returns the identity error kind reported in trailer, or "".
func Kind(trailer metadata.MD) autherr.Kind {
	if v := trailer.Get(ErrorKindTrailer); len(v) > 0 {
		return autherr.Kind(v[0])
	}
	return ""
}

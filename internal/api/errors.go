package api

import (
	"context"
	"errors"

	"github.com/matheus3301/relay/internal/domain"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain tags the ErrorInfo detail carrying a domain error kind.
const ErrorDomain = "relay"

var kindCodes = map[domain.Kind]codes.Code{
	domain.KindNotFound:     codes.NotFound,
	domain.KindUnauthorized: codes.PermissionDenied,
	domain.KindInvalidState: codes.FailedPrecondition,
	domain.KindExpired:      codes.DeadlineExceeded,
}

// ToStatus converts an engine error into a gRPC status error. Domain errors
// keep their kind in an ErrorInfo detail.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return status.Error(codes.Internal, err.Error())
	}
	st := status.New(kindCodes[de.Kind], de.Reason)
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: string(de.Kind), Domain: ErrorDomain}); derr == nil {
		st = detailed
	}
	return st.Err()
}

// FromStatus reverses ToStatus: a status carrying a domain kind becomes a
// *domain.Error again, so callers can use errors.Is with the domain sentinels.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		return &domain.Error{Kind: domain.Kind(info.GetReason()), Reason: st.Message()}
	}
	return err
}

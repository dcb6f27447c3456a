package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pmt/backend/internal/platform/apperr"
	userservice "pmt/backend/internal/user/service"
)

// ToStatus maps a service error to a gRPC status error. Internal errors are reported without their cause.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, userservice.ErrInvalidCredentials), errors.Is(err, userservice.ErrTokenRevoked):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	case apperr.ErrNotAMember, apperr.ErrPermissionDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	case apperr.ErrProjectMismatch, apperr.ErrInvalidStatus, apperr.ErrValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/fieldflow/internal/core/db"
	"github.com/solatis/fieldflow/internal/types"
)

// Auth errors are mapped by the auth interceptor.

// errInvalidRequest marks malformed request payloads.
var errInvalidRequest = errors.New("invalid request")

// validationErrors map to INVALID_ARGUMENT.
var validationErrors = []error{
	errInvalidRequest,
	types.ErrEmptyTarget,
	types.ErrEmptySource,
	types.ErrNoDependencies,
	types.ErrUnknownTrigger,
	types.ErrNegativeDebounce,
	types.ErrTooManyPlaceholders,
	types.ErrDerivationCycle,
	types.ErrDuplicateEntryID,
}

// toStatus maps err to a gRPC status. Errors that are neither validation,
// lookup nor deadline errors are store failures and map to UNAVAILABLE.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, db.ErrFormNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return status.Error(codes.Unavailable, err.Error())
}

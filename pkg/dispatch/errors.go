package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/backend"
)

// mapError translates an adapter failure into the error taxonomy.
func mapError(backendName string, timeout time.Duration, err error) *apperror.Error {
	if e, ok := apperror.As(err); ok {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.Wrap(apperror.Timeout,
			"backend "+backendName+" did not answer within "+timeout.String(), err)
	case errors.Is(err, context.Canceled):
		return apperror.Wrap(apperror.Adapter, "request canceled", err)
	case errors.Is(err, backend.ErrUnsupportedKind),
		errors.Is(err, backend.ErrUnsupportedRefinement),
		errors.Is(err, backend.ErrUnsupportedPredicate),
		errors.Is(err, backend.ErrUnsafeName):
		return apperror.Wrap(apperror.UnsupportedBackend, err.Error(), err)
	default:
		return apperror.Wrap(apperror.Adapter, err.Error(), err)
	}
}

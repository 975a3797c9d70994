package usecase

import (
	"errors"

	"LineGuard/internal/domain/errs"
)

// classify keeps already classified errors and marks the rest internal.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.Internal(err, msg)
}

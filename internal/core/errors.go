package core

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Callers wrap them with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSchedulerOverlap = errors.New("sweep already in progress")
	ErrTimeout          = errors.New("operation timed out")
)

// Kind names, aligned with the log package error types.
const (
	KindValidation       = "validation_error"
	KindNotFound         = "not_found_error"
	KindStoreUnavailable = "database_error"
	KindSchedulerOverlap = "conflict_error"
	KindTimeout          = "timeout_error"
	KindInternal         = "internal_error"
)

// ErrorKind classifies err into one of the stable kind names.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrSchedulerOverlap):
		return KindSchedulerOverlap
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// WrapTimeout turns a context deadline into ErrTimeout, leaving other errors alone.
func WrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return err
}

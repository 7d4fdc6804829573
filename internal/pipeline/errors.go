package pipeline

import (
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// The failure taxonomy maps onto asynq semantics: a transient error returned
// from a handler triggers redelivery (bounded by MaxRetry); a permanent error
// is recorded on the owning row and the message is acknowledged.

// ErrUnsupportedContent marks inputs no collaborator can handle.
var ErrUnsupportedContent = errors.New("unsupported content")

// ErrStaleGeneration marks messages from before the last project reset.
var ErrStaleGeneration = errors.New("stale generation")

// Transient wraps an error so the message is redelivered unchanged.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// Permanent wraps an error so asynq archives the task instead of retrying.
// The caller must have recorded the failure on the owning row first.
func Permanent(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, asynq.SkipRetry)
}

// IsPermanent reports whether err will not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}

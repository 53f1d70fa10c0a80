// Package extjob runs long-running external operations to completion:
// submit once, then poll sequentially with a bounded attempt budget.
package extjob

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Handle locates a submitted long-running job at the provider.
type Handle struct {
	ID          string
	SubmittedAt time.Time
}

// PollResult is one provider status observation. When Done is set, either
// Failed reports a terminal provider-side error, or the payload is carried
// inline or behind a result URL requiring a follow-up fetch.
type PollResult struct {
	Done      bool
	Failed    bool
	Message   string
	Inline    []byte
	ResultURL string
}

// Operation is the caller-specific provider binding.
type Operation interface {
	Submit(ctx context.Context) (Handle, error)
	Poll(ctx context.Context, handle Handle) (PollResult, error)
}

// Config bounds a completion wait. The wall-clock ceiling is
// InitialDelay + Interval × MaxAttempts for every outcome.
type Config struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// ErrTimeout reports an exhausted attempt budget without the job reaching a
// terminal provider state. It is a normal result, not a fatal condition.
var ErrTimeout = errors.New("external job timed out")

// ErrInvalidPollerConfig reports an unusable Config.
var ErrInvalidPollerConfig = errors.New("invalid poller config")

// JobError reports a terminal provider-side failure. It is never retried.
type JobError struct {
	Message string
}

// Error returns the provider failure message.
func (jobError *JobError) Error() string {
	return fmt.Sprintf("external job failed: %s", jobError.Message)
}

package extjob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// Payloads below this size are a disguised provider error (a JSON error
	// body or an empty object), never a real generated artifact.
	defaultMinPayloadBytes = 1024

	maxFetchedPayloadBytes = 128 << 20
)

// Option configures a Poller.
type Option func(*Poller)

// WithLogger attaches a logger for transient poll failures.
func WithLogger(logger *zap.Logger) Option {
	return func(poller *Poller) {
		poller.logger = logger
	}
}

// WithHTTPClient overrides the client used to fetch result URLs.
func WithHTTPClient(client *http.Client) Option {
	return func(poller *Poller) {
		poller.httpClient = client
	}
}

// WithMinPayloadBytes overrides the payload plausibility floor.
func WithMinPayloadBytes(minBytes int) Option {
	return func(poller *Poller) {
		poller.minPayloadBytes = minBytes
	}
}

// withSleep replaces the wait primitive; tests use it to run instantly.
func withSleep(sleep func(ctx context.Context, duration time.Duration) error) Option {
	return func(poller *Poller) {
		poller.sleep = sleep
	}
}

// Poller waits for submitted operations to finish within a fixed budget.
// Polling is strictly sequential per handle and never exceeds the
// configured rate.
type Poller struct {
	config          Config
	logger          *zap.Logger
	httpClient      *http.Client
	minPayloadBytes int
	sleep           func(ctx context.Context, duration time.Duration) error
}

// NewPoller validates the budget and wires a Poller.
func NewPoller(config Config, options ...Option) (*Poller, error) {
	if config.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive", ErrInvalidPollerConfig)
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidPollerConfig)
	}
	if config.InitialDelay < 0 {
		return nil, fmt.Errorf("%w: initial delay must not be negative", ErrInvalidPollerConfig)
	}
	poller := &Poller{
		config:          config,
		logger:          zap.NewNop(),
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		minPayloadBytes: defaultMinPayloadBytes,
		sleep:           sleepContext,
	}
	for _, option := range options {
		if option != nil {
			option(poller)
		}
	}
	return poller, nil
}

// AwaitCompletion waits InitialDelay, then polls at Interval until the job
// reports done, the attempt budget runs out, or ctx is cancelled. A done
// result with a failure payload returns a *JobError; an exhausted budget
// returns ErrTimeout. Transient poll-call errors consume an attempt but do
// not short-circuit the budget.
func (poller *Poller) AwaitCompletion(ctx context.Context, operation Operation, handle Handle) ([]byte, error) {
	if err := poller.sleep(ctx, poller.config.InitialDelay); err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= poller.config.MaxAttempts; attempt++ {
		result, err := operation.Poll(ctx, handle)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			poller.logger.Warn("poll attempt failed",
				zap.String("job_id", handle.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", poller.config.MaxAttempts),
				zap.Error(err),
			)
		case result.Done && result.Failed:
			return nil, &JobError{Message: failureMessage(result)}
		case result.Done:
			return poller.resolvePayload(ctx, result)
		}
		if attempt < poller.config.MaxAttempts {
			if err := poller.sleep(ctx, poller.config.Interval); err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrTimeout
}

// resolvePayload normalizes the two provider result shapes (inline bytes or
// a storage locator) into one byte payload, with one explicit fallback
// order: inline first, then the result URL.
func (poller *Poller) resolvePayload(ctx context.Context, result PollResult) ([]byte, error) {
	payload := result.Inline
	if len(payload) == 0 && result.ResultURL != "" {
		fetched, err := poller.fetchResult(ctx, result.ResultURL)
		if err != nil {
			return nil, &JobError{Message: fmt.Sprintf("result fetch failed: %v", err)}
		}
		payload = fetched
	}
	if len(payload) == 0 {
		return nil, &JobError{Message: "job reported done with no payload"}
	}
	if len(payload) < poller.minPayloadBytes {
		return nil, &JobError{Message: fmt.Sprintf("payload of %d bytes is too small to be a real result", len(payload))}
	}
	return payload, nil
}

func (poller *Poller) fetchResult(ctx context.Context, resultURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}
	response, err := poller.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", response.StatusCode)
	}
	return io.ReadAll(io.LimitReader(response.Body, maxFetchedPayloadBytes))
}

func failureMessage(result PollResult) string {
	if result.Message != "" {
		return result.Message
	}
	return "provider reported failure without detail"
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

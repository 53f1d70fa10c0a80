package generation

import (
	"context"
	"errors"
)

// RequestStatus is the lifecycle state of one generation request.
type RequestStatus string

const (
	StatusRunning        RequestStatus = "running"
	StatusCompleted      RequestStatus = "completed"
	StatusFailedRefunded RequestStatus = "failed_refunded"
)

// Request records one saga execution. A request row exists only once a
// reservation has been granted; rejected reservations leave no trace here.
type Request struct {
	RequestID      string
	UserID         string
	Kind           string
	Prompt         string
	Status         RequestStatus
	Cost           int64
	ArtifactURLs   []string
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// ErrRequestNotFound reports a lookup for an unknown request.
var ErrRequestNotFound = errors.New("generation: request not found")

// RequestStore persists generation requests.
type RequestStore interface {
	InsertRequest(ctx context.Context, request Request) error
	UpdateRequestOutcome(ctx context.Context, requestID string, status RequestStatus, artifactURLs []string, updatedUnixUTC int64) error
	GetRequest(ctx context.Context, requestID string) (Request, error)
}

package media

import (
	"context"
	"fmt"
)

// Metadata is the extended description of a finished encode. It is written
// atomically with the transition into StatusReady and never before.
type Metadata struct {
	DurationSeconds int    `json:"durationSeconds"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	PlaybackURL     string `json:"playbackUrl"`
	ThumbnailURL    string `json:"thumbnailUrl"`
	PreviewURL      string `json:"previewUrl"`
}

// Asset is one externally encoded media item tracked to a terminal state.
type Asset struct {
	AssetID              string
	OwnerID              string
	ExternalJobID        string
	Title                string
	Status               Status
	LastTransitionSource Source
	FailureReason        string
	Metadata             *Metadata
	UpdatedUnixUTC       int64
}

// ErrAssetNotFound reports a lookup for an asset the store does not hold.
var ErrAssetNotFound = fmt.Errorf("media: asset not found")

// ErrDuplicateExternalJob reports an insert for an external job id that is
// already tracked.
var ErrDuplicateExternalJob = fmt.Errorf("media: external job already tracked")

// AssetStore persists assets. ApplyTransition must be atomic per asset: the
// status write happens only if the stored status is still non-terminal, and
// the returned flag reports whether the write was applied.
type AssetStore interface {
	InsertAsset(ctx context.Context, asset Asset) error
	GetAssetByExternalJobID(ctx context.Context, externalJobID string) (Asset, error)
	ApplyTransition(ctx context.Context, transition Transition) (bool, error)
}

// Transition is one requested status change for an asset.
type Transition struct {
	ExternalJobID  string
	NextStatus     Status
	Source         Source
	FailureReason  string
	Metadata       *Metadata
	UpdatedUnixUTC int64
}

// Encoder is the slice of the encode provider's API the reconciler and the
// upload flow need.
type Encoder interface {
	CreateVideo(ctx context.Context, title string) (externalJobID string, uploadURL string, err error)
	FetchStatusCode(ctx context.Context, externalJobID string) (int, error)
	FetchMetadata(ctx context.Context, externalJobID string) (Metadata, error)
}

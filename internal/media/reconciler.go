// Package media tracks externally encoded assets to a terminal state. Status
// inputs arrive from two independent sources, a provider webhook and a
// status poll, in any order and possibly duplicated; the reconciler converges
// them by refusing every transition once an asset is terminal.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidReconcilerConfig reports a Reconciler constructed without its
// required collaborators.
var ErrInvalidReconcilerConfig = fmt.Errorf("media: invalid reconciler configuration")

// Reconciler applies status inputs to stored assets.
type Reconciler struct {
	assetStore AssetStore
	encoder    Encoder
	logger     *zap.Logger
	nowFn      func() time.Time
}

// ReconcilerOption adjusts optional Reconciler behavior.
type ReconcilerOption func(*Reconciler)

// WithLogger replaces the default no-op logger.
func WithLogger(logger *zap.Logger) ReconcilerOption {
	return func(reconciler *Reconciler) {
		if logger != nil {
			reconciler.logger = logger
		}
	}
}

func withClock(nowFn func() time.Time) ReconcilerOption {
	return func(reconciler *Reconciler) {
		reconciler.nowFn = nowFn
	}
}

// NewReconciler validates collaborators and returns a ready Reconciler.
func NewReconciler(assetStore AssetStore, encoder Encoder, options ...ReconcilerOption) (*Reconciler, error) {
	if assetStore == nil {
		return nil, fmt.Errorf("%w: asset store is required", ErrInvalidReconcilerConfig)
	}
	if encoder == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidReconcilerConfig)
	}
	reconciler := &Reconciler{
		assetStore: assetStore,
		encoder:    encoder,
		logger:     zap.NewNop(),
		nowFn:      time.Now,
	}
	for _, option := range options {
		option(reconciler)
	}
	return reconciler, nil
}

// CreateUpload registers a new encode job with the provider and stores the
// asset in its initial uploading state. The returned upload URL is handed to
// the client for the direct upload.
func (reconciler *Reconciler) CreateUpload(ctx context.Context, ownerID string, title string) (Asset, string, error) {
	externalJobID, uploadURL, createError := reconciler.encoder.CreateVideo(ctx, title)
	if createError != nil {
		return Asset{}, "", fmt.Errorf("media: create video: %w", createError)
	}
	asset := Asset{
		AssetID:        uuid.NewString(),
		OwnerID:        ownerID,
		ExternalJobID:  externalJobID,
		Title:          title,
		Status:         StatusUploading,
		UpdatedUnixUTC: reconciler.nowFn().UTC().Unix(),
	}
	if insertError := reconciler.assetStore.InsertAsset(ctx, asset); insertError != nil {
		return Asset{}, "", fmt.Errorf("media: store asset: %w", insertError)
	}
	return asset, uploadURL, nil
}

// Apply maps a raw provider status code and applies the resulting transition.
// Inputs for already-terminal assets are absorbed as no-ops; the two sources
// may race or duplicate each other freely. An unknown code is returned as
// ErrUnknownStatusCode without touching the asset.
func (reconciler *Reconciler) Apply(ctx context.Context, externalJobID string, statusCode int, source Source) error {
	nextStatus, mapError := MapStatusCode(statusCode)
	if mapError != nil {
		return mapError
	}

	transition := Transition{
		ExternalJobID:  externalJobID,
		NextStatus:     nextStatus,
		Source:         source,
		UpdatedUnixUTC: reconciler.nowFn().UTC().Unix(),
	}
	switch nextStatus {
	case StatusReady:
		// Metadata travels with the ready flip or not at all, so fetch it
		// before the write.
		metadata, metadataError := reconciler.encoder.FetchMetadata(ctx, externalJobID)
		if metadataError != nil {
			return fmt.Errorf("media: fetch metadata for %s: %w", externalJobID, metadataError)
		}
		transition.Metadata = &metadata
	case StatusFailed:
		transition.FailureReason = failureReasonForCode(statusCode)
	}

	applied, transitionError := reconciler.assetStore.ApplyTransition(ctx, transition)
	if transitionError != nil {
		return fmt.Errorf("media: transition %s: %w", externalJobID, transitionError)
	}
	if !applied {
		reconciler.logger.Debug("transition skipped, asset already terminal",
			zap.String("external_job_id", externalJobID),
			zap.String("source", string(source)),
			zap.Int("status_code", statusCode))
		return nil
	}
	reconciler.logger.Info("asset transitioned",
		zap.String("external_job_id", externalJobID),
		zap.String("status", string(nextStatus)),
		zap.String("source", string(source)))
	return nil
}

// PollOnce pulls the provider's current status for the asset and applies it.
// Terminal assets are returned as-is without contacting the provider.
func (reconciler *Reconciler) PollOnce(ctx context.Context, externalJobID string) (Asset, error) {
	asset, getError := reconciler.assetStore.GetAssetByExternalJobID(ctx, externalJobID)
	if getError != nil {
		return Asset{}, getError
	}
	if asset.Status.IsTerminal() {
		return asset, nil
	}
	statusCode, fetchError := reconciler.encoder.FetchStatusCode(ctx, externalJobID)
	if fetchError != nil {
		return Asset{}, fmt.Errorf("media: poll %s: %w", externalJobID, fetchError)
	}
	if applyError := reconciler.Apply(ctx, externalJobID, statusCode, SourcePoll); applyError != nil {
		return Asset{}, applyError
	}
	return reconciler.assetStore.GetAssetByExternalJobID(ctx, externalJobID)
}

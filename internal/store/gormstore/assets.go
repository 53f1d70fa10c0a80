package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lucentmedia/genstudio/internal/media"
)

// AssetStore implements media.AssetStore.
type AssetStore struct {
	db *gorm.DB
}

// NewAssetStore returns an AssetStore backed by gorm.DB.
func NewAssetStore(db *gorm.DB) *AssetStore {
	return &AssetStore{db: db}
}

func (store *AssetStore) InsertAsset(ctx context.Context, asset media.Asset) error {
	row := MediaAsset{
		AssetID:              asset.AssetID,
		OwnerID:              asset.OwnerID,
		ExternalJobID:        asset.ExternalJobID,
		Title:                asset.Title,
		Status:               string(asset.Status),
		LastTransitionSource: string(asset.LastTransitionSource),
		FailureReason:        asset.FailureReason,
		CreatedAt:            time.Unix(asset.UpdatedUnixUTC, 0).UTC(),
		UpdatedAt:            time.Unix(asset.UpdatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return media.ErrDuplicateExternalJob
	}
	if err != nil {
		return fmt.Errorf("gormstore: insert asset: %w", err)
	}
	return nil
}

func (store *AssetStore) GetAssetByExternalJobID(ctx context.Context, externalJobID string) (media.Asset, error) {
	var row MediaAsset
	err := store.db.WithContext(ctx).
		Where("external_job_id = ?", externalJobID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return media.Asset{}, media.ErrAssetNotFound
		}
		return media.Asset{}, fmt.Errorf("gormstore: get asset: %w", err)
	}
	return mapAsset(row)
}

// ApplyTransition performs the conditional status write. The WHERE clause
// excludes terminal rows, so two racing inputs cannot both win: the second
// observes RowsAffected 0 and the caller treats it as a converged no-op.
func (store *AssetStore) ApplyTransition(ctx context.Context, transition media.Transition) (bool, error) {
	updates := map[string]any{
		"status":                 string(transition.NextStatus),
		"last_transition_source": string(transition.Source),
		"failure_reason":         transition.FailureReason,
		"updated_at":             time.Unix(transition.UpdatedUnixUTC, 0).UTC(),
	}
	if transition.Metadata != nil {
		encoded, marshalError := json.Marshal(transition.Metadata)
		if marshalError != nil {
			return false, fmt.Errorf("gormstore: encode asset metadata: %w", marshalError)
		}
		updates["metadata"] = datatypes.JSON(encoded)
	}

	result := store.db.WithContext(ctx).
		Model(&MediaAsset{}).
		Where("external_job_id = ? AND status NOT IN ?", transition.ExternalJobID,
			[]string{string(media.StatusReady), string(media.StatusFailed)}).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("gormstore: transition asset: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Nothing updated: either the row is terminal (a legitimate no-op) or
	// it does not exist at all.
	var count int64
	if countError := store.db.WithContext(ctx).
		Model(&MediaAsset{}).
		Where("external_job_id = ?", transition.ExternalJobID).
		Count(&count).Error; countError != nil {
		return false, fmt.Errorf("gormstore: check asset: %w", countError)
	}
	if count == 0 {
		return false, media.ErrAssetNotFound
	}
	return false, nil
}

func mapAsset(row MediaAsset) (media.Asset, error) {
	var metadata *media.Metadata
	if len(row.Metadata) > 0 {
		var decoded media.Metadata
		if unmarshalError := json.Unmarshal(row.Metadata, &decoded); unmarshalError != nil {
			return media.Asset{}, fmt.Errorf("gormstore: decode asset metadata: %w", unmarshalError)
		}
		metadata = &decoded
	}
	return media.Asset{
		AssetID:              row.AssetID,
		OwnerID:              row.OwnerID,
		ExternalJobID:        row.ExternalJobID,
		Title:                row.Title,
		Status:               media.Status(row.Status),
		LastTransitionSource: media.Source(row.LastTransitionSource),
		FailureReason:        row.FailureReason,
		Metadata:             metadata,
		UpdatedUnixUTC:       row.UpdatedAt.Unix(),
	}, nil
}

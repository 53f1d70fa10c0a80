package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lucentmedia/genstudio/internal/generation"
)

// RequestStore implements generation.RequestStore.
type RequestStore struct {
	db *gorm.DB
}

// NewRequestStore returns a RequestStore backed by gorm.DB.
func NewRequestStore(db *gorm.DB) *RequestStore {
	return &RequestStore{db: db}
}

func (store *RequestStore) InsertRequest(ctx context.Context, request generation.Request) error {
	urls, marshalError := marshalURLs(request.ArtifactURLs)
	if marshalError != nil {
		return marshalError
	}
	row := GenerationRequest{
		RequestID:    request.RequestID,
		UserID:       request.UserID,
		Kind:         request.Kind,
		Prompt:       request.Prompt,
		Status:       string(request.Status),
		Cost:         request.Cost,
		ArtifactURLs: urls,
		CreatedAt:    time.Unix(request.CreatedUnixUTC, 0).UTC(),
		UpdatedAt:    time.Unix(request.UpdatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: insert request: %w", err)
	}
	return nil
}

func (store *RequestStore) UpdateRequestOutcome(ctx context.Context, requestID string, status generation.RequestStatus, artifactURLs []string, updatedUnixUTC int64) error {
	urls, marshalError := marshalURLs(artifactURLs)
	if marshalError != nil {
		return marshalError
	}
	result := store.db.WithContext(ctx).
		Model(&GenerationRequest{}).
		Where("request_id = ?", requestID).
		Updates(map[string]any{
			"status":        string(status),
			"artifact_urls": urls,
			"updated_at":    time.Unix(updatedUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("gormstore: update request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return generation.ErrRequestNotFound
	}
	return nil
}

func (store *RequestStore) GetRequest(ctx context.Context, requestID string) (generation.Request, error) {
	var row GenerationRequest
	err := store.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return generation.Request{}, generation.ErrRequestNotFound
		}
		return generation.Request{}, fmt.Errorf("gormstore: get request: %w", err)
	}

	var urls []string
	if len(row.ArtifactURLs) > 0 {
		if unmarshalError := json.Unmarshal(row.ArtifactURLs, &urls); unmarshalError != nil {
			return generation.Request{}, fmt.Errorf("gormstore: decode artifact urls: %w", unmarshalError)
		}
	}
	return generation.Request{
		RequestID:      row.RequestID,
		UserID:         row.UserID,
		Kind:           row.Kind,
		Prompt:         row.Prompt,
		Status:         generation.RequestStatus(row.Status),
		Cost:           row.Cost,
		ArtifactURLs:   urls,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		UpdatedUnixUTC: row.UpdatedAt.Unix(),
	}, nil
}

func marshalURLs(urls []string) (datatypes.JSON, error) {
	if urls == nil {
		urls = []string{}
	}
	encoded, marshalError := json.Marshal(urls)
	if marshalError != nil {
		return nil, fmt.Errorf("gormstore: encode artifact urls: %w", marshalError)
	}
	return datatypes.JSON(encoded), nil
}

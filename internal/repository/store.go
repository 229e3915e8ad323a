package repository

import (
	"context"
	"errors"
	"fmt"

	"smartmail/internal/model"
)

var ErrNotFound = errors.New("record not found")

// ClassificationPolicy decides what a re-fetch does to an existing classification.
type ClassificationPolicy string

const (
	// PolicyPreserve keeps classification and metadata from the first write.
	PolicyPreserve ClassificationPolicy = "preserve"
	// PolicyResetOnChange clears the classification when subject, snippet or bodies changed.
	PolicyResetOnChange ClassificationPolicy = "reset_on_change"
)

func ParsePolicy(s string) (ClassificationPolicy, error) {
	switch ClassificationPolicy(s) {
	case "", PolicyPreserve:
		return PolicyPreserve, nil
	case PolicyResetOnChange:
		return PolicyResetOnChange, nil
	}
	return "", fmt.Errorf("unknown classification policy %q", s)
}

// UpsertResult mirrors a bulk write summary.
type UpsertResult struct {
	UpsertedCount int `json:"upserted_count"`
	ModifiedCount int `json:"modified_count"`
	SkippedCount  int `json:"skipped_count"`
	FailedCount   int `json:"failed_count"`
}

// EmailStore persists canonical email records and the reply log.
type EmailStore interface {
	UpsertMany(ctx context.Context, records []model.EmailRecord) (UpsertResult, error)
	GetAll(ctx context.Context) ([]model.EmailRecord, error)
	GetUnclassified(ctx context.Context) ([]model.EmailRecord, error)
	GetClassified(ctx context.Context) ([]model.EmailRecord, error)
	GetByID(ctx context.Context, id string) (*model.EmailRecord, error)
	UpdateClassification(ctx context.Context, provider, providerMessageID string, c model.Classification) error
	AppendResponse(ctx context.Context, r *model.ResponseRecord) error
	ListResponses(ctx context.Context) ([]model.ResponseRecord, error)
	SaveAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

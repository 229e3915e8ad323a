package ingest

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "smartmail/contracts/mq"
	"smartmail/internal/model"
	"smartmail/internal/normalize"
	"smartmail/internal/repository"
	"smartmail/pkg/logger"
	"smartmail/pkg/metrics"
	"smartmail/pkg/util"
)

// MailFetcher returns raw provider messages, newest first.
type MailFetcher interface {
	FetchInbox(ctx context.Context, max int) ([]normalize.RawMessage, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Result struct {
	Fetched     int
	Upsert      repository.UpsertResult
	TotalStored int
	Emails      []model.EmailRecord
}

type Service struct {
	fetcher  MailFetcher
	store    repository.EmailStore
	provider string
	events   Publisher
	dedup    *util.Deduper
	logger   *zap.Logger
}

// NewService events and dedup may be nil.
func NewService(fetcher MailFetcher, store repository.EmailStore, provider string, events Publisher, dedup *util.Deduper, logger *zap.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		store:    store,
		provider: provider,
		events:   events,
		dedup:    dedup,
		logger:   logger,
	}
}

// Fetch pulls up to max messages, normalizes and upserts them. Zero fetched is
// a normal outcome with an empty Result.
func (s *Service) Fetch(ctx context.Context, max int) (*Result, error) {
	log := logger.WithTrace(ctx, s.logger)

	raws, err := s.fetcher.FetchInbox(ctx, max)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		log.Info("No emails fetched")
		return &Result{}, nil
	}

	records := make([]model.EmailRecord, 0, len(raws))
	for _, raw := range raws {
		rec := normalize.Normalize(raw, s.provider)
		if !normalize.HasID(rec) {
			log.Warn("Dropping message without id", zap.String("subject", rec.Subject))
		}
		records = append(records, rec)
	}

	upsert, err := s.store.UpsertMany(ctx, records)
	if err != nil {
		return nil, err
	}
	metrics.AddUpsertOutcome("inserted", upsert.UpsertedCount)
	metrics.AddUpsertOutcome("modified", upsert.ModifiedCount)
	metrics.AddUpsertOutcome("skipped", upsert.SkippedCount)
	metrics.AddUpsertOutcome("failed", upsert.FailedCount)

	all, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.EmailRecord, len(all))
	for _, r := range all {
		byKey[r.ProviderMessageID] = r
	}

	emails := make([]model.EmailRecord, 0, len(records))
	for _, rec := range records {
		stored, ok := byKey[rec.ProviderMessageID]
		if !ok || !normalize.HasID(rec) {
			continue
		}
		emails = append(emails, stored)
		s.publishFetched(ctx, stored)
	}

	log.Info("Fetch complete",
		zap.Int("fetched", len(raws)),
		zap.Int("upserted", upsert.UpsertedCount),
		zap.Int("modified", upsert.ModifiedCount),
		zap.Int("total_stored", len(all)),
	)
	return &Result{
		Fetched:     len(raws),
		Upsert:      upsert,
		TotalStored: len(all),
		Emails:      emails,
	}, nil
}

// publishFetched 同一封邮件在 TTL 内只发布一次
func (s *Service) publishFetched(ctx context.Context, rec model.EmailRecord) {
	if s.events == nil {
		return
	}
	if !s.dedup.AcquireOnce(ctx, mqcontracts.RoutingEmailFetched, rec.Provider+":"+rec.ProviderMessageID) {
		return
	}
	err := s.events.Publish(ctx, mqcontracts.RoutingEmailFetched, mqcontracts.EmailFetchedPayload{
		EmailID:           rec.ID,
		Provider:          rec.Provider,
		ProviderMessageID: rec.ProviderMessageID,
		ThreadID:          rec.ThreadID,
		From:              rec.From,
		Subject:           rec.Subject,
		FetchedAt:         rec.FetchedAt,
	})
	if err != nil {
		s.logger.Debug("publish email.fetched skipped",
			zap.String("provider_message_id", rec.ProviderMessageID),
			zap.Error(err),
		)
	}
}

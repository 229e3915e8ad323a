package classify

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "smartmail/contracts/mq"
	"smartmail/internal/llm"
	"smartmail/internal/model"
	"smartmail/internal/repository"
	"smartmail/pkg/logger"
	"smartmail/pkg/metrics"
	"smartmail/pkg/util"
)

// Publisher emits domain events. Implementations must not block the batch.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Service struct {
	store  repository.EmailStore
	llm    llm.Completer
	events Publisher
	logger *zap.Logger
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) error
}

// NewService events may be nil.
func NewService(store repository.EmailStore, completer llm.Completer, events Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		llm:    completer,
		events: events,
		logger: logger,
		now:    time.Now,
		wait:   sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClassifyBatch classifies up to limit unclassified records one at a time,
// persisting each result before pausing for delay. Per-item failures degrade to
// the fallback classification; only the initial read or cancellation is returned as an error.
func (s *Service) ClassifyBatch(ctx context.Context, limit int, delay time.Duration) ([]model.EmailRecord, error) {
	log := logger.WithTrace(ctx, s.logger)

	pending, err := s.store.GetUnclassified(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.Info("No unclassified emails found")
		return []model.EmailRecord{}, nil
	}
	if limit >= 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	updated := make([]model.EmailRecord, 0, len(pending))
	for i, rec := range pending {
		log.Info("Classifying email",
			zap.Int("index", i+1),
			zap.Int("total", len(pending)),
			zap.String("from", rec.From),
			zap.String("subject", truncate(rec.Subject, 50)),
		)

		decoded := s.Classify(ctx, rec)
		c := decoded.Classification
		outcome := "ok"
		if decoded.Err != nil {
			outcome = "fallback"
		}

		if err := s.store.UpdateClassification(ctx, rec.Provider, rec.ProviderMessageID, c); err != nil {
			metrics.IncrementClassification(string(c.Category), "persist_error")
			log.Error("persist classification failed",
				zap.String("provider_message_id", rec.ProviderMessageID),
				zap.String("error_type", util.ClassifyError(err)),
				zap.Error(err),
			)
		} else {
			metrics.IncrementClassification(string(c.Category), outcome)
			rec.Classification = &c
			rec.Processed = true
			updated = append(updated, rec)
			s.publish(ctx, rec, c, decoded.Err != nil)

			log.Info("Email classified",
				zap.String("provider_message_id", rec.ProviderMessageID),
				zap.String("category", string(c.Category)),
				zap.Float64("confidence", c.Confidence),
				zap.String("outcome", outcome),
			)
		}

		if i < len(pending)-1 {
			if err := s.wait(ctx, delay); err != nil {
				return updated, err
			}
		}
	}

	log.Info("Classification batch completed", zap.Int("classified", len(updated)))
	return updated, nil
}

// Classify runs the per-email step. An LLM error yields the fallback.
func (s *Service) Classify(ctx context.Context, rec model.EmailRecord) Decoded {
	text, err := s.llm.Complete(ctx, BuildPrompt(rec))
	if err != nil {
		s.logger.Warn("classification call failed, using fallback",
			zap.String("provider_message_id", rec.ProviderMessageID),
			zap.String("error_type", util.ClassifyError(err)),
			zap.Error(err),
		)
		return Decoded{Classification: Fallback(), Err: err}
	}

	decoded := Decode(text)
	if decoded.Err != nil {
		s.logger.Warn("failed to parse classification result",
			zap.String("provider_message_id", rec.ProviderMessageID),
			zap.String("raw_output", truncate(text, 500)),
			zap.Error(decoded.Err),
		)
	}
	return decoded
}

func (s *Service) publish(ctx context.Context, rec model.EmailRecord, c model.Classification, fallback bool) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, mqcontracts.RoutingEmailClassified, mqcontracts.EmailClassifiedPayload{
		ProviderMessageID: rec.ProviderMessageID,
		Category:          string(c.Category),
		Confidence:        c.Confidence,
		Fallback:          fallback,
		ClassifiedAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Debug("publish email.classified skipped", zap.Error(err))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "smartmail/contracts/mq"
	"smartmail/internal/llm"
	"smartmail/internal/model"
	"smartmail/internal/repository"
	"smartmail/pkg/logger"
	"smartmail/pkg/metrics"
)

const (
	// PlaceholderRecipient is used when the original email has no To entry.
	PlaceholderRecipient = "unknown@example.com"
	noSubject            = "No Subject"

	// placeholderInput is the example value API clients send when they leave human_input untouched.
	placeholderInput = "string"
)

// ErrInvalidID is returned for an email id that is not a well-formed identifier.
var ErrInvalidID = errors.New("invalid email id format")

// MailSender dispatches a plain-text reply.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) (model.ProviderReceipt, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Request struct {
	EmailID    string
	HumanInput *string
	Send       bool
}

type Result struct {
	EmailID         string                 `json:"email_id"`
	To              string                 `json:"to"`
	From            string                 `json:"from"`
	Subject         string                 `json:"subject"`
	Draft           string                 `json:"draft"`
	Status          model.ResponseStatus   `json:"status"`
	ProviderReceipt *model.ProviderReceipt `json:"gmail_response"`
}

type Service struct {
	store  repository.EmailStore
	llm    llm.Completer
	sender MailSender
	events Publisher
	logger *zap.Logger
}

func NewService(store repository.EmailStore, completer llm.Completer, sender MailSender, events Publisher, logger *zap.Logger) *Service {
	return &Service{store: store, llm: completer, sender: sender, events: events, logger: logger}
}

// GenerateResponse drafts a reply to one stored email, optionally merging human
// text and sending it. Only a sent reply is recorded.
func (s *Service) GenerateResponse(ctx context.Context, req Request) (*Result, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("email_id", req.EmailID))

	if _, err := uuid.Parse(req.EmailID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, req.EmailID)
	}
	email, err := s.store.GetByID(ctx, req.EmailID)
	if err != nil {
		return nil, err
	}

	sender := email.From
	recipient := email.FirstRecipient()
	if recipient == "" {
		recipient = PlaceholderRecipient
	}
	subject := ReplySubject(email.Subject)
	body := email.BodyPlain
	if body == "" {
		body = email.Snippet
	}

	draft, err := s.llm.Complete(ctx, BuildPrompt(sender, recipient, subject, body))
	if err != nil {
		metrics.IncrementResponse("llm_error")
		return nil, err
	}

	human, edited := humanText(req.HumanInput)
	if edited {
		draft = draft + "\n" + human
	}

	res := &Result{
		EmailID: req.EmailID,
		To:      recipient,
		From:    sender,
		Subject: subject,
		Draft:   draft,
		Status:  model.ResponseStatusDraftGenerated,
	}
	if !req.Send {
		metrics.IncrementResponse(string(res.Status))
		log.Info("Draft generated")
		return res, nil
	}

	receipt, err := s.sender.Send(ctx, sender, subject, draft)
	if err != nil {
		metrics.IncrementResponse("send_error")
		return nil, err
	}

	record := &model.ResponseRecord{
		EmailID:       req.EmailID,
		ThreadID:      email.ThreadID,
		To:            sender,
		From:          recipient,
		Subject:       subject,
		Body:          draft,
		Status:        model.ResponseStatusSent,
		EditedByHuman: edited,
		GmailResponse: receipt,
	}
	if err := s.store.AppendResponse(ctx, record); err != nil {
		// 邮件已发出，但记录失败
		log.Error("reply sent but not recorded", zap.String("gmail_id", receipt.ID), zap.Error(err))
		return nil, err
	}

	res.Status = model.ResponseStatusSent
	res.ProviderReceipt = &receipt
	metrics.IncrementResponse(string(res.Status))
	s.publish(ctx, record)
	log.Info("Reply sent and recorded", zap.String("response_id", record.ID), zap.Bool("edited_by_human", edited))
	return res, nil
}

func (s *Service) publish(ctx context.Context, r *model.ResponseRecord) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, mqcontracts.RoutingResponseSent, mqcontracts.ResponseSentPayload{
		ResponseID:    r.ID,
		EmailID:       r.EmailID,
		To:            r.To,
		Subject:       r.Subject,
		EditedByHuman: r.EditedByHuman,
		ProviderID:    r.GmailResponse.ID,
		SentAt:        sentAt(r),
	})
	if err != nil {
		s.logger.Debug("publish response.sent skipped", zap.Error(err))
	}
}

func sentAt(r *model.ResponseRecord) time.Time {
	if r.SentAt.IsZero() {
		return r.CreatedAt
	}
	return r.SentAt
}

func ReplySubject(subject string) string {
	if subject == "" {
		subject = noSubject
	}
	return "Re: " + subject
}

// humanText returns the text to append and whether a merge happens.
func humanText(in *string) (string, bool) {
	if in == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*in)
	if trimmed == "" || trimmed == placeholderInput {
		return "", false
	}
	return *in, true
}

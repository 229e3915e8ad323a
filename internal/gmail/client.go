package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"smartmail/internal/model"
	"smartmail/internal/normalize"
	"smartmail/pkg/config"
	"smartmail/pkg/metrics"
)

const (
	Provider = "gmail"
	user     = "me"
)

// AttachmentSink stores downloaded attachment bytes and returns a storage id.
type AttachmentSink interface {
	SaveAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// NewService builds an OAuth-backed Gmail service from a client secret and a cached token.
// The token must already exist; run the OAuth consent flow out of band.
func NewService(ctx context.Context, cfg config.GmailConfig) (*gmailv1.Service, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", cfg.CredentialsFile, err)
	}

	oauthCfg, err := google.ConfigFromJSON(b,
		gmailv1.GmailReadonlyScope,
		gmailv1.GmailSendScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tok, err := readToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token at %s: %w", cfg.TokenFile, err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Client wraps the Gmail API for inbox fetch and reply send.
type Client struct {
	svc              *gmailv1.Service
	mailbox          string
	fetchAttachments bool
	sink             AttachmentSink
	logger           *zap.Logger
}

// NewClient sink may be nil, in which case attachments are listed but never downloaded.
func NewClient(svc *gmailv1.Service, cfg config.GmailConfig, sink AttachmentSink, logger *zap.Logger) *Client {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Client{
		svc:              svc,
		mailbox:          mailbox,
		fetchAttachments: cfg.FetchAttachments && sink != nil,
		sink:             sink,
		logger:           logger,
	}
}

// FetchInbox lists up to max messages in the configured label and fetches each in full.
// A message that fails to load is logged and skipped.
func (c *Client) FetchInbox(ctx context.Context, max int) ([]normalize.RawMessage, error) {
	if max <= 0 {
		return nil, nil
	}

	list, err := c.svc.Users.Messages.List(user).
		LabelIds(c.mailbox).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]normalize.RawMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := c.svc.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			c.logger.Warn("get message failed", zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}

		raw := messageToRaw(msg)
		if c.fetchAttachments {
			c.storeAttachments(ctx, msg.Id, raw.Attachments)
		}
		out = append(out, raw)
	}

	metrics.AddEmailsFetched(Provider, len(out))
	c.logger.Info("Fetched messages", zap.String("mailbox", c.mailbox), zap.Int("count", len(out)))
	return out, nil
}

// storeAttachments fills StorageID in place. Failures leave the attachment metadata-only.
func (c *Client) storeAttachments(ctx context.Context, messageID string, atts []normalize.RawAttachment) {
	for i := range atts {
		a := &atts[i]
		if a.AttachmentID == "" {
			continue
		}
		if a.Size > MaxAttachmentSize {
			c.logger.Info("Skipping oversized attachment", zap.String("filename", a.Filename), zap.Int64("size", a.Size))
			continue
		}
		body, err := c.svc.Users.Messages.Attachments.Get(user, messageID, a.AttachmentID).Context(ctx).Do()
		if err != nil {
			c.logger.Warn("download attachment failed", zap.String("message_id", messageID), zap.String("filename", a.Filename), zap.Error(err))
			continue
		}
		data, err := decodeBase64URL(body.Data)
		if err != nil {
			c.logger.Warn("decode attachment failed", zap.String("filename", a.Filename), zap.Error(err))
			continue
		}
		id, err := c.sink.SaveAttachment(ctx, SanitizeFilename(a.Filename), a.MimeType, data)
		if err != nil {
			c.logger.Warn("store attachment failed", zap.String("filename", a.Filename), zap.Error(err))
			continue
		}
		a.StorageID = id
	}
}

// Send composes a plain-text reply and submits it. The receipt is returned as the provider reports it.
func (c *Client) Send(ctx context.Context, to, subject, body string) (model.ProviderReceipt, error) {
	raw, err := ComposeRaw(to, subject, body)
	if err != nil {
		return model.ProviderReceipt{}, err
	}
	sent, err := c.svc.Users.Messages.Send(user, &gmailv1.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return model.ProviderReceipt{}, fmt.Errorf("send message: %w", err)
	}
	c.logger.Info("Message sent", zap.String("gmail_id", sent.Id), zap.String("thread_id", sent.ThreadId))
	return model.ProviderReceipt{ID: sent.Id, ThreadID: sent.ThreadId, LabelIDs: sent.LabelIds}, nil
}

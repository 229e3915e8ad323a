package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartmail/internal/model"
)

// emailJSON holds the JSON-encoded columns shared by both backends.
type emailJSON struct {
	To, Cc, Bcc     []byte
	Headers         []byte
	Labels          []byte
	Attachments     []byte
	Classifications []byte
	Metadata        []byte
}

func encodeEmailJSON(rec model.EmailRecord) (emailJSON, error) {
	var (
		out emailJSON
		err error
	)
	marshal := func(dst *[]byte, v any, empty string) {
		if err != nil {
			return
		}
		var b []byte
		b, err = json.Marshal(v)
		if err == nil && string(b) == "null" {
			b = []byte(empty)
		}
		*dst = b
	}
	marshal(&out.To, rec.To, "[]")
	marshal(&out.Cc, rec.Cc, "[]")
	marshal(&out.Bcc, rec.Bcc, "[]")
	marshal(&out.Headers, rec.Headers, "{}")
	marshal(&out.Labels, rec.Labels, "[]")
	marshal(&out.Attachments, rec.Attachments, "[]")
	marshal(&out.Metadata, rec.Metadata, "{}")
	if err != nil {
		return emailJSON{}, fmt.Errorf("encode email %s: %w", rec.ProviderMessageID, err)
	}
	out.Classifications, err = encodeClassification(rec.Classification)
	if err != nil {
		return emailJSON{}, err
	}
	return out, nil
}

func encodeClassification(c *model.Classification) ([]byte, error) {
	if c == nil || c.Category == "" {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode classification: %w", err)
	}
	return b, nil
}

func decodeEmailJSON(rec *model.EmailRecord, cols emailJSON) error {
	fields := []struct {
		name string
		data []byte
		dst  any
	}{
		{"to", cols.To, &rec.To},
		{"cc", cols.Cc, &rec.Cc},
		{"bcc", cols.Bcc, &rec.Bcc},
		{"headers", cols.Headers, &rec.Headers},
		{"labels", cols.Labels, &rec.Labels},
		{"attachments", cols.Attachments, &rec.Attachments},
		{"metadata", cols.Metadata, &rec.Metadata},
	}
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return fmt.Errorf("decode %s of %s: %w", f.name, rec.ID, err)
		}
	}

	if len(cols.Classifications) > 0 {
		var c model.Classification
		if err := json.Unmarshal(cols.Classifications, &c); err != nil {
			return fmt.Errorf("decode classifications of %s: %w", rec.ID, err)
		}
		if c.Category != "" {
			rec.Classification = &c
		}
	}
	return nil
}

func encodeReceipt(r model.ProviderReceipt) ([]byte, error) {
	if r.LabelIDs == nil {
		r.LabelIDs = []string{}
	}
	return json.Marshal(r)
}

func decodeReceipt(data []byte, r *model.ProviderReceipt) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, r)
}

func hasKey(rec model.EmailRecord) bool {
	return strings.TrimSpace(rec.ProviderMessageID) != "" && strings.TrimSpace(rec.Provider) != ""
}

// prepareResponse fills ids and timestamps the caller left empty.
func prepareResponse(r *model.ResponseRecord, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.SentAt.IsZero() && r.Status == model.ResponseStatusSent {
		r.SentAt = now
	}
}

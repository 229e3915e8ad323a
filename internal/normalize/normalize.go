package normalize

import (
	"net/mail"
	"strings"
	"time"

	"smartmail/internal/model"
)

// Normalize maps a raw provider message into the canonical record shape.
// It is a pure mapping: ID, FetchedAt and CreatedAt are left for the store.
func Normalize(raw RawMessage, provider string) model.EmailRecord {
	to := firstList(raw.To, raw.ToList)

	rec := model.EmailRecord{
		Provider:          provider,
		ProviderMessageID: firstNonEmpty(raw.ProviderMessageID, raw.ID, raw.MessageID, raw.MessageIDSnake),
		ThreadID:          firstNonEmpty(raw.ThreadID, raw.ThreadIDSnake),
		Mailbox:           firstNonEmpty(raw.Mailbox, raw.MailTo, first(to)),
		From:              firstNonEmpty(raw.From, raw.Sender, raw.FromEmail),
		To:                nonNil(to),
		Cc:                nonNil(raw.Cc),
		Bcc:               nonNil(raw.Bcc),
		Subject:           firstNonEmpty(raw.Subject, raw.SubjectTitle),
		Snippet:           raw.Snippet,
		BodyPlain:         firstNonEmpty(raw.BodyPlain, raw.Plain),
		BodyHTML:          firstNonEmpty(raw.BodyHTML, raw.HTML),
		Headers:           map[string]string(raw.Headers),
		Labels:            nonNil(firstList(raw.Labels, raw.LabelIDs)),
		Date:              resolveDate(raw),
		Attachments:       attachments(raw.Attachments),
		Processed:         raw.Processed,
		Metadata:          raw.Metadata,
	}
	if rec.Headers == nil {
		rec.Headers = map[string]string{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	if c := raw.Classifications; c != nil && c.Category != "" {
		cls := *c
		cls.Category = model.ParseCategory(string(c.Category))
		cls.Confidence = model.ClampConfidence(c.Confidence)
		rec.Classification = &cls
	}
	return rec
}

// HasID reports whether the record can be keyed for upsert.
func HasID(rec model.EmailRecord) bool {
	return strings.TrimSpace(rec.ProviderMessageID) != ""
}

// CleanText trims and folds newlines into spaces for one-line display.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// ParseDate accepts RFC 2822 and ISO-8601 forms. Unparseable input returns nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := mail.ParseDate(s); err == nil {
		return &t
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// FromEpochMillis converts a provider internalDate.
func FromEpochMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func resolveDate(raw RawMessage) *time.Time {
	if raw.ParsedDate != nil && !raw.ParsedDate.IsZero() {
		t := *raw.ParsedDate
		return &t
	}
	if t := ParseDate(raw.Date); t != nil {
		return t
	}
	return FromEpochMillis(int64(raw.InternalDate))
}

func attachments(in []RawAttachment) []model.Attachment {
	out := make([]model.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, model.Attachment{
			Filename:     a.Filename,
			MimeType:     firstNonEmpty(a.MimeType, a.MimeTypeSnake),
			Size:         a.Size,
			AttachmentID: firstNonEmpty(a.AttachmentID, a.AttachmentIDSnake),
			StorageID:    a.StorageID,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

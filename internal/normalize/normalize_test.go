package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmail/internal/model"
)

func decode(t *testing.T, s string) RawMessage {
	t.Helper()
	var raw RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalizeIDFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"provider_message_id wins", `{"provider_message_id":"p","id":"i","messageId":"m","message_id":"s"}`, "p"},
		{"id", `{"id":"i","messageId":"m"}`, "i"},
		{"messageId", `{"messageId":"m","message_id":"s"}`, "m"},
		{"message_id", `{"message_id":"s"}`, "s"},
		{"none", `{"subject":"hello"}`, ""},
		{"blank", `{"id":"   "}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(decode(t, tt.json), "gmail")
			assert.Equal(t, "gmail", rec.Provider)
			assert.Equal(t, tt.want, rec.ProviderMessageID)
			assert.Equal(t, tt.want != "", HasID(rec))
		})
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	rec := Normalize(decode(t, `{
		"id": "m1",
		"thread_id": "t1",
		"sender": "Alice <alice@example.com>",
		"to": "bob@example.com",
		"Subject": "Quarterly numbers",
		"plain": "see attached",
		"html": "<p>see attached</p>",
		"labelIds": ["INBOX", "UNREAD"],
		"headers": [{"name": "Subject", "value": "Quarterly numbers"}],
		"attachments": [{"filename": "q3.pdf", "mimeType": "application/pdf", "size": 12, "attachmentId": "a1"}]
	}`), "gmail")

	assert.Equal(t, "t1", rec.ThreadID)
	assert.Equal(t, "Alice <alice@example.com>", rec.From)
	assert.Equal(t, []string{"bob@example.com"}, rec.To)
	assert.Equal(t, "bob@example.com", rec.Mailbox)
	assert.Equal(t, "Quarterly numbers", rec.Subject)
	assert.Equal(t, "see attached", rec.BodyPlain)
	assert.Equal(t, "<p>see attached</p>", rec.BodyHTML)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, rec.Labels)
	assert.Equal(t, "Quarterly numbers", rec.Headers["Subject"])
	require.Len(t, rec.Attachments, 1)
	assert.Equal(t, model.Attachment{Filename: "q3.pdf", MimeType: "application/pdf", Size: 12, AttachmentID: "a1"}, rec.Attachments[0])
	assert.Empty(t, rec.Cc)
	assert.NotNil(t, rec.Cc)
	assert.Nil(t, rec.Classification)
	assert.NotNil(t, rec.Metadata)
}

func TestNormalizeToList(t *testing.T) {
	rec := Normalize(decode(t, `{"id":"1","to_list":["a@x.com","b@x.com"],"mail_to":"box@x.com"}`), "gmail")
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, rec.To)
	assert.Equal(t, "box@x.com", rec.Mailbox)
}

func TestNormalizeDates(t *testing.T) {
	parsed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  RawMessage
		want *time.Time
	}{
		{"rfc2822", RawMessage{Date: "Wed, 01 May 2024 09:30:00 +0000"}, &parsed},
		{"iso", RawMessage{Date: "2024-05-01T09:30:00Z"}, &parsed},
		{"epoch ms", RawMessage{InternalDate: EpochMillis(parsed.UnixMilli())}, &parsed},
		{"already parsed", RawMessage{ParsedDate: &parsed, Date: "garbage"}, &parsed},
		{"garbage falls through to internalDate", RawMessage{Date: "not a date", InternalDate: EpochMillis(parsed.UnixMilli())}, &parsed},
		{"garbage only", RawMessage{Date: "not a date"}, nil},
		{"nothing", RawMessage{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, "gmail").Date
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v", got)
		})
	}
}

func TestInternalDateAsString(t *testing.T) {
	raw := decode(t, `{"id":"1","internalDate":"1714555800000"}`)
	rec := Normalize(raw, "gmail")
	require.NotNil(t, rec.Date)
	assert.Equal(t, int64(1714555800000), rec.Date.UnixMilli())
}

func TestUnparseableInternalDateIsNil(t *testing.T) {
	raw := decode(t, `{"id":"1","subject":"hi","internalDate":"yesterday"}`)
	rec := Normalize(raw, "gmail")
	assert.Equal(t, "hi", rec.Subject)
	assert.Nil(t, rec.Date)

	raw = decode(t, `{"id":"2","date":"not a date","internalDate":"12ab"}`)
	assert.Nil(t, Normalize(raw, "gmail").Date)
}

func TestNormalizeCarriesClassification(t *testing.T) {
	rec := Normalize(decode(t, `{"id":"1","classifications":{"category":"Invented","confidence":3}}`), "gmail")
	require.NotNil(t, rec.Classification)
	assert.Equal(t, model.CategoryOther, rec.Classification.Category)
	assert.Equal(t, 1.0, rec.Classification.Confidence)

	rec = Normalize(decode(t, `{"id":"1","classifications":{}}`), "gmail")
	assert.Nil(t, rec.Classification)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "line one line two", CleanText("  line one\nline two \n"))
	assert.Equal(t, "a b", CleanText("a\r\nb"))
}

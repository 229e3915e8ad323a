package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smartmail/internal/model"
)

// RawMessage covers every field spelling the fetch paths produce. Each
// canonical field is resolved from its aliases by a fallback chain in Normalize.
type RawMessage struct {
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ID                string `json:"id,omitempty"`
	MessageID         string `json:"messageId,omitempty"`
	MessageIDSnake    string `json:"message_id,omitempty"`

	ThreadID      string `json:"threadId,omitempty"`
	ThreadIDSnake string `json:"thread_id,omitempty"`

	Mailbox string `json:"mailbox,omitempty"`
	MailTo  string `json:"mail_to,omitempty"`

	From      string `json:"from,omitempty"`
	Sender    string `json:"sender,omitempty"`
	FromEmail string `json:"from_email,omitempty"`

	To     AddressList `json:"to,omitempty"`
	ToList AddressList `json:"to_list,omitempty"`
	Cc     AddressList `json:"cc,omitempty"`
	Bcc    AddressList `json:"bcc,omitempty"`

	Subject      string `json:"subject,omitempty"`
	SubjectTitle string `json:"Subject,omitempty"`
	Snippet      string `json:"snippet,omitempty"`

	BodyPlain string `json:"body_plain,omitempty"`
	Plain     string `json:"plain,omitempty"`
	BodyHTML  string `json:"body_html,omitempty"`
	HTML      string `json:"html,omitempty"`

	Headers  Headers  `json:"headers,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	LabelIDs []string `json:"labelIds,omitempty"`

	Attachments []RawAttachment `json:"attachments,omitempty"`

	Date         string      `json:"date,omitempty"`
	InternalDate EpochMillis `json:"internalDate,omitempty"`
	// ParsedDate is set by Go callers that already hold a timestamp.
	ParsedDate *time.Time `json:"-"`

	Processed       bool                  `json:"processed,omitempty"`
	Classifications *model.Classification `json:"classifications,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
}

type RawAttachment struct {
	Filename          string `json:"filename"`
	MimeType          string `json:"mimeType,omitempty"`
	MimeTypeSnake     string `json:"mime_type,omitempty"`
	Size              int64  `json:"size,omitempty"`
	AttachmentID      string `json:"attachmentId,omitempty"`
	AttachmentIDSnake string `json:"attachment_id,omitempty"`
	StorageID         string `json:"storage_id,omitempty"`
}

// AddressList decodes either a JSON string or a JSON array of strings.
type AddressList []string

func (a *AddressList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s == "" {
			*a = nil
		} else {
			*a = AddressList{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("address list: %w", err)
	}
	*a = list
	return nil
}

// Headers decodes either an object or the provider's [{name, value}] list.
type Headers map[string]string

func (h *Headers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pairs []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &pairs); err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		out := make(Headers, len(pairs))
		for _, p := range pairs {
			out[p.Name] = p.Value
		}
		*h = out
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	*h = m
	return nil
}

// EpochMillis accepts a JSON number or a numeric string (the Gmail REST form).
type EpochMillis int64

func (e *EpochMillis) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 无法解析按缺失处理
		*e = 0
		return nil
	}
	*e = EpochMillis(v)
	return nil
}

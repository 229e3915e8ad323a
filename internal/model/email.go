package model

import "time"

// EmailRecord 是一封邮件的规范化存储形态，自然键为 (Provider, ProviderMessageID)
type EmailRecord struct {
	ID                string            `json:"id"`
	Provider          string            `json:"provider"`
	ProviderMessageID string            `json:"provider_message_id"`
	ThreadID          string            `json:"thread_id"`
	Mailbox           string            `json:"mailbox"`
	From              string            `json:"from"`
	To                []string          `json:"to"`
	Cc                []string          `json:"cc"`
	Bcc               []string          `json:"bcc"`
	Subject           string            `json:"subject"`
	Snippet           string            `json:"snippet"`
	BodyPlain         string            `json:"body_plain"`
	BodyHTML          string            `json:"body_html"`
	Headers           map[string]string `json:"headers"`
	Labels            []string          `json:"labels"`
	Date              *time.Time        `json:"date"`
	Attachments       []Attachment      `json:"attachments"`
	Classification    *Classification   `json:"classifications,omitempty"`
	Metadata          map[string]any    `json:"metadata"`
	FetchedAt         time.Time         `json:"fetched_at"`
	CreatedAt         time.Time         `json:"created_at"`
	Processed         bool              `json:"processed"`
}

type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	StorageID    string `json:"storage_id,omitempty"`
}

// IsClassified 判断是否已有分类：分类存在且 category 非空
func (e EmailRecord) IsClassified() bool {
	return e.Classification != nil && e.Classification.Category != ""
}

// FirstRecipient 返回第一个收件人，没有时返回空串
func (e EmailRecord) FirstRecipient() string {
	if len(e.To) == 0 {
		return ""
	}
	return e.To[0]
}

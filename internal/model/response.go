package model

import "time"

type ResponseStatus string

const (
	ResponseStatusSent           ResponseStatus = "sent"
	ResponseStatusDraftGenerated ResponseStatus = "draft_generated"
)

// ProviderReceipt 邮件服务商返回的发送回执，核心逻辑不解析其内容
type ProviderReceipt struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
}

// ResponseRecord 发送记录，只追加不修改
type ResponseRecord struct {
	ID            string          `json:"id"`
	EmailID       string          `json:"email_id"`
	ThreadID      string          `json:"thread_id"`
	To            string          `json:"to"`
	From          string          `json:"from"`
	Subject       string          `json:"subject"`
	Body          string          `json:"body"`
	Status        ResponseStatus  `json:"status"`
	EditedByHuman bool            `json:"edited_by_human"`
	CreatedAt     time.Time       `json:"created_at"`
	SentAt        time.Time       `json:"sent_at"`
	GmailResponse ProviderReceipt `json:"gmail_response"`
}

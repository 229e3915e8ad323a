package mq

import "time"

// Routing keys on the smartmail.events topic exchange.
const (
	RoutingEmailFetched    = "email.fetched"
	RoutingEmailClassified = "email.classified"
	RoutingResponseSent    = "response.sent"
)

// EmailFetchedPayload 新邮件入库（或被刷新）后发布
type EmailFetchedPayload struct {
	EmailID           string    `json:"email_id"`
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"provider_message_id"`
	ThreadID          string    `json:"thread_id"`
	From              string    `json:"from"`
	Subject           string    `json:"subject"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// EmailClassifiedPayload 分类写入成功后发布
type EmailClassifiedPayload struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Category          string    `json:"category"`
	Confidence        float64   `json:"confidence"`
	Fallback          bool      `json:"fallback"`
	ClassifiedAt      time.Time `json:"classified_at"`
}

// ResponseSentPayload 回复发送并记录后发布
type ResponseSentPayload struct {
	ResponseID    string    `json:"response_id"`
	EmailID       string    `json:"email_id"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	EditedByHuman bool      `json:"edited_by_human"`
	ProviderID    string    `json:"provider_id"`
	SentAt        time.Time `json:"sent_at"`
}

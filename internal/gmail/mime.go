package gmail

import (
	"encoding/base64"
	"strings"

	"github.com/emersion/go-message/mail"
	gmailv1 "google.golang.org/api/gmail/v1"

	"smartmail/internal/normalize"
)

// MaxAttachmentSize 25MB，与 Gmail 上限一致
const MaxAttachmentSize = 25 * 1024 * 1024

// messageToRaw 把 Gmail full 格式的消息转换为 RawMessage
func messageToRaw(msg *gmailv1.Message) normalize.RawMessage {
	raw := normalize.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		LabelIDs:     msg.LabelIds,
		InternalDate: normalize.EpochMillis(msg.InternalDate),
		Headers:      normalize.Headers{},
	}
	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		raw.Headers[h.Name] = h.Value
		switch strings.ToLower(h.Name) {
		case "from":
			raw.From = h.Value
		case "to":
			raw.To = splitAddressList(h.Value)
		case "cc":
			raw.Cc = splitAddressList(h.Value)
		case "bcc":
			raw.Bcc = splitAddressList(h.Value)
		case "subject":
			raw.Subject = h.Value
		case "date":
			raw.Date = h.Value
		}
	}

	raw.BodyPlain = extractBody(msg.Payload, "text/plain")
	raw.BodyHTML = extractBody(msg.Payload, "text/html")

	walkParts(msg.Payload, func(p *gmailv1.MessagePart) {
		if p.Filename == "" || p.Body == nil {
			return
		}
		raw.Attachments = append(raw.Attachments, normalize.RawAttachment{
			Filename:     p.Filename,
			MimeType:     p.MimeType,
			Size:         p.Body.Size,
			AttachmentID: p.Body.AttachmentId,
		})
	})
	return raw
}

// splitAddressList 解析失败时退回按逗号切分
func splitAddressList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(v)
	if err != nil {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name == "" {
			out = append(out, a.Address)
			continue
		}
		out = append(out, a.String())
	}
	return out
}

// extractBody 返回第一个匹配 mimeType 的非附件正文
func extractBody(part *gmailv1.MessagePart, mimeType string) string {
	var body string
	walkParts(part, func(p *gmailv1.MessagePart) {
		if body != "" || p.Filename != "" || p.Body == nil || p.Body.Data == "" {
			return
		}
		if strings.EqualFold(p.MimeType, mimeType) {
			if b, err := decodeBase64URL(p.Body.Data); err == nil {
				body = string(b)
			}
		}
	})
	return body
}

func walkParts(part *gmailv1.MessagePart, fn func(*gmailv1.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}

func decodeBase64URL(data string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail 有时不带 padding
		return base64.RawURLEncoding.DecodeString(data)
	}
	return b, nil
}

// SanitizeFilename 防止路径穿越
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	return strings.ReplaceAll(filename, "..", "_")
}

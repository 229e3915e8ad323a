package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// ComposeRaw builds a text/plain RFC 5322 message and returns it base64url-encoded
// as the Gmail send endpoint expects.
func ComposeRaw(to, subject, body string) (string, error) {
	b, err := compose(to, subject, body, time.Now())
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func compose(to, subject, body string, now time.Time) ([]byte, error) {
	rcpt, err := parseRecipient(to)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("To", []*mail.Address{rcpt})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func parseRecipient(to string) (*mail.Address, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, fmt.Errorf("empty recipient")
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse recipient %q: %w", to, err)
	}
	return addr, nil
}

package util

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"smartmail/pkg/circuitbreaker"
)

// ClassifyError 返回错误类别，用于日志字段和指标标签
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return "json_decode_error"
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return "circuit_open"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "context_canceled"
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return "not_found"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "network_timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "UNIQUE constraint"):
		return "duplicate_key"
	case strings.Contains(errStr, "llm"):
		return "llm_error"
	case strings.Contains(errStr, "gmail"):
		return "mail_provider_error"
	}
	return "unknown_error"
}

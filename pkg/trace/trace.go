package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	oteltrace "go.opentelemetry.io/otel/trace"
)

const headerName = "X-Trace-ID"

type ctxKey struct{}

// HeaderName 返回 trace ID 的 HTTP header 名称
func HeaderName() string {
	return headerName
}

// GenerateTraceID 生成 32 位十六进制 ID，与 W3C trace-id 同长度
func GenerateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure 保证 ctx 带有 trace_id：已有则沿用，其次取 OTel span 的 trace id，最后随机生成
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateTraceID()
	if sc := oteltrace.SpanContextFromContext(ctx); sc.HasTraceID() {
		id = sc.TraceID().String()
	}
	return WithContext(ctx, id), id
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartmail/pkg/circuitbreaker"
	"smartmail/pkg/config"
	"smartmail/pkg/trace"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGeminiClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
}

func TestGeminiComplete(t *testing.T) {
	var got generateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "trace-123", r.Header.Get(trace.HeaderName()))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"there"}]},"finishReason":"STOP"}]}`))
	}).With("classify", 0.2)

	ctx := trace.WithContext(context.Background(), "trace-123")
	text, err := c.Complete(ctx, "say hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "say hi", got.Contents[0].Parts[0].Text)
	assert.InDelta(t, 0.2, got.GenerationConfig.Temperature, 1e-9)
}

func TestGeminiEmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})
	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiErrorStatusOpensBreaker(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	})

	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	}
	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestWithSharesBreaker(t *testing.T) {
	c := NewGeminiClient(config.LLMConfig{}, zap.NewNop())
	r := c.With("respond", 0.4)
	assert.Same(t, c.cb, r.cb)
	assert.Equal(t, "respond", r.purpose)
	assert.Equal(t, "generate", c.purpose)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

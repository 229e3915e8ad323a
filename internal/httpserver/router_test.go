package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartmail/internal/api"
	"smartmail/internal/model"
	"smartmail/pkg/auth"
	"smartmail/pkg/trace"
)

type stubStore struct {
	pingErr error
}

func (s *stubStore) Ping(context.Context) error { return s.pingErr }
func (s *stubStore) GetAll(context.Context) ([]model.EmailRecord, error) {
	return []model.EmailRecord{}, nil
}
func (s *stubStore) GetClassified(context.Context) ([]model.EmailRecord, error) {
	return []model.EmailRecord{}, nil
}
func (s *stubStore) ListResponses(context.Context) ([]model.ResponseRecord, error) {
	return []model.ResponseRecord{}, nil
}

type stubMQ bool

func (s stubMQ) IsConnected() bool { return bool(s) }

func newTestRouter(store *stubStore, events Connectivity, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := api.NewHandler(nil, nil, nil, store, api.Options{}, zap.NewNop())
	return NewRouter(h, store, events, secret, zap.NewNop()).Engine
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	store := &stubStore{}
	r := newTestRouter(store, stubMQ(true), "")

	w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName()))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mq":"connected"`)

	store.pingErr = errors.New("connection refused")
	w = serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyWithoutMQ(t *testing.T) {
	r := newTestRouter(&stubStore{}, nil, "")
	w := serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Contains(t, w.Body.String(), `"mq":"disabled"`)
}

func TestTraceIDPropagated(t *testing.T) {
	r := newTestRouter(&stubStore{}, nil, "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(trace.HeaderName(), "abc123")
	w := serve(r, req)
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName()))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&stubStore{}, nil, "")
	serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration")
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "s3cret"
	r := newTestRouter(&stubStore{}, nil, secret)

	// 公开路由不需要 token
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/emails", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/emails", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := auth.GenerateToken("ops", secret, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/emails", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoAuthWhenSecretEmpty(t *testing.T) {
	r := newTestRouter(&stubStore{}, nil, "")
	w := serve(r, httptest.NewRequest(http.MethodGet, "/responded-emails", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

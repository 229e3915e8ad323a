package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartmail/pkg/circuitbreaker"
	"smartmail/pkg/config"
	"smartmail/pkg/metrics"
	"smartmail/pkg/trace"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"
)

// ErrEmptyResponse 模型返回了 200 但没有任何文本
var ErrEmptyResponse = errors.New("llm returned no text")

// Completer 单轮文本补全
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiClient 调用 Gemini generateContent，带熔断器
type GeminiClient struct {
	baseURL     string
	model       string
	apiKey      string
	purpose     string
	temperature float64
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewGeminiClient(cfg config.LLMConfig, logger *zap.Logger) *GeminiClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cbConfig := circuitbreaker.DefaultConfig("gemini")
	cbConfig.FailureThreshold = 3
	cbConfig.HalfOpenMaxRequests = 1
	cbConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &GeminiClient{
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		purpose:    "generate",
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker(cbConfig),
		logger:     logger,
	}
}

// With 返回共享连接与熔断器的副本，只改变用途标签和温度
func (c *GeminiClient) With(purpose string, temperature float64) *GeminiClient {
	cp := *c
	cp.purpose = purpose
	cp.temperature = temperature
	return &cp
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Complete 发送单条 user 消息，返回第一个候选的全部文本
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	var text string
	err := c.cb.Execute(func() error {
		start := time.Now()
		var err error
		text, err = c.generate(ctx, prompt)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordLLMCallLatency(c.purpose, status, time.Since(start))
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		metrics.RecordLLMCallLatency(c.purpose, "circuit_open", 0)
	}
	if err != nil {
		return "", fmt.Errorf("llm %s: %w", c.purpose, err)
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: c.temperature},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("LLM call complete",
		zap.String("purpose", c.purpose),
		zap.String("model", c.model),
		zap.String("finish_reason", out.Candidates[0].FinishReason),
	)
	return sb.String(), nil
}

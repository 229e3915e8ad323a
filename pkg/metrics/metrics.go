package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLM 调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "LLM completion call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"purpose", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Number of queries slower than the configured threshold",
		},
		[]string{"command"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~65s
		},
		[]string{"method", "path", "status"},
	)

	// 拉取邮件计数
	EmailsFetchedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_fetched_total",
			Help: "Total number of raw messages fetched from the mail provider",
		},
		[]string{"provider"},
	)

	// upsert 结果计数
	UpsertOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_upsert_total",
			Help: "Per-record outcome of email upserts",
		},
		[]string{"outcome"}, // upserted, modified, skipped, failed
	)

	// 分类计数
	ClassificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_classification_total",
			Help: "Total number of email classifications",
		},
		[]string{"category", "outcome"}, // outcome: success, fallback
	)

	// 回复计数
	ResponseCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_response_total",
			Help: "Total number of generated replies",
		},
		[]string{"status"}, // sent, draft_generated, failed
	)

	// 事件发布计数
	EventPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of domain events published",
		},
		[]string{"routing_key", "status"},
	)

	// 熔断器状态：0 closed, 1 open, 2 half-open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// RecordLLMCallLatency 记录 LLM 调用延迟
func RecordLLMCallLatency(purpose, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(purpose, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 按 SQL 命令记录慢查询
func IncrementSlowQuery(sql string) {
	command := "unknown"
	if fields := strings.Fields(sql); len(fields) > 0 {
		command = strings.ToUpper(fields[0])
	}
	SlowQueryCount.WithLabelValues(command).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// AddEmailsFetched 增加拉取计数
func AddEmailsFetched(provider string, n int) {
	EmailsFetchedCount.WithLabelValues(provider).Add(float64(n))
}

// AddUpsertOutcome 增加 upsert 结果计数
func AddUpsertOutcome(outcome string, n int) {
	if n <= 0 {
		return
	}
	UpsertOutcomeCount.WithLabelValues(outcome).Add(float64(n))
}

// IncrementClassification 增加分类计数
func IncrementClassification(category, outcome string) {
	ClassificationCount.WithLabelValues(category, outcome).Inc()
}

// IncrementResponse 增加回复计数
func IncrementResponse(status string) {
	ResponseCount.WithLabelValues(status).Inc()
}

// IncrementEventPublish 增加事件发布计数
func IncrementEventPublish(routingKey, status string) {
	EventPublishCount.WithLabelValues(routingKey, status).Inc()
}

// SetCircuitBreakerState 记录熔断器状态
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

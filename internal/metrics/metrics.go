package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_insight"

var (
	// HTTP
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// 摄取
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Chat events processed by outcome (ingested, skipped)",
		},
		[]string{"outcome"},
	)

	NamespacesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "namespaces_total",
			Help:      "Namespaces processed by outcome (ok, empty, failed)",
		},
		[]string{"outcome"},
	)

	ConversationSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "conversation_splits_total",
			Help:      "Conversations closed by a close phrase and replaced by a successor",
		},
	)

	BlankMessagesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "blank_messages_swept_total",
			Help:      "Blank messages removed by cleanup sweeps",
		},
	)

	// 标注
	AnnotatorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "annotator",
			Name:      "calls_total",
			Help:      "Annotator calls by kind (message, conversation) and engine (llm, heuristic, fallback)",
		},
		[]string{"kind", "engine"},
	)

	AnnotatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "annotator",
			Name:      "duration_seconds",
			Help:      "Annotator model call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 4, 8, 12},
		},
		[]string{"kind"},
	)

	// 查询缓存
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "insight",
			Name:      "cache_lookups_total",
			Help:      "Insight cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
)

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Streaming metrics
	streamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptweave_stream_chunks_total",
			Help: "Total streamed chunks received by generation phase",
		},
		[]string{"phase"}, // "outline", "section", "regeneration"
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptweave_phase_duration_seconds",
			Help:    "Wall-clock duration of each generation phase",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~500s
		},
		[]string{"phase", "status"},
	)

	// Section metrics
	sectionWordCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scriptweave_section_word_count",
			Help:    "Word count of completed sections",
			Buckets: prometheus.LinearBuckets(100, 100, 12), // 100 to 1300 words
		},
	)

	regenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptweave_regenerations_total",
			Help: "Regeneration jobs queued by trigger",
		},
		[]string{"trigger"}, // "automatic" or "manual"
	)

	// Persistence metrics
	conversationSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptweave_conversation_saves_total",
			Help: "Conversation persistence attempts by outcome",
		},
		[]string{"outcome"}, // "success" or "error"
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger}
}

// RecordStreamChunk counts one received chunk for the given phase
func (c *Collector) RecordStreamChunk(phase string) {
	streamChunks.WithLabelValues(phase).Inc()
}

// RecordPhase records how long a generation phase ran and how it ended
func (c *Collector) RecordPhase(phase string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// RecordSectionWordCount records the final word count of a completed section
func (c *Collector) RecordSectionWordCount(words int) {
	sectionWordCount.Observe(float64(words))
}

// RecordRegeneration counts one queued regeneration job
func (c *Collector) RecordRegeneration(manual bool) {
	trigger := "automatic"
	if manual {
		trigger = "manual"
	}
	regenerations.WithLabelValues(trigger).Inc()
}

// RecordConversationSave counts one persistence attempt
func (c *Collector) RecordConversationSave(success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	conversationSaves.WithLabelValues(outcome).Inc()
}

// Serve exposes the Prometheus endpoint. It blocks, so callers run it in a
// goroutine; errors are logged rather than fatal since metrics are optional.
func Serve(listen string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("Metrics endpoint listening", "addr", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Warn("Metrics endpoint stopped", "error", err)
	}
}

package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusHooks records lifecycle, cache and tool events as Prometheus
// metrics. It implements LifecycleHooks, CacheHooks and ToolHooks.
type PrometheusHooks struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	cacheBytes    *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	toolErrors    *prometheus.CounterVec
}

// NewPrometheusHooks creates the collectors and registers them with reg.
func NewPrometheusHooks(reg prometheus.Registerer) *PrometheusHooks {
	f := promauto.With(reg)
	return &PrometheusHooks{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackforge_runs_total",
			Help: "Total number of lifecycle runs by final state",
		}, []string{"recipe", "state"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stackforge_run_duration_seconds",
			Help:    "Duration of lifecycle runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"recipe"}),
		runsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "stackforge_runs_in_flight",
			Help: "Current number of lifecycle runs",
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stackforge_stage_duration_seconds",
			Help:    "Duration of lifecycle stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackforge_stage_errors_total",
			Help: "Total number of failed lifecycle stages",
		}, []string{"stage"}),
		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackforge_cache_events_total",
			Help: "Cache lookups and writes by key type and result",
		}, []string{"key_type", "result"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackforge_cache_written_bytes_total",
			Help: "Bytes written to the cache by key type",
		}, []string{"key_type"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stackforge_tool_duration_seconds",
			Help:    "Duration of external tool invocations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"tool", "step"}),
		toolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stackforge_tool_errors_total",
			Help: "Total number of failed external tool invocations",
		}, []string{"tool", "step"}),
	}
}

func (h *PrometheusHooks) OnRunStart(ctx context.Context, recipe string) {
	h.runsInFlight.Inc()
}

func (h *PrometheusHooks) OnStageStart(ctx context.Context, recipe, stage string) {}

func (h *PrometheusHooks) OnStageComplete(ctx context.Context, recipe, stage string, duration time.Duration, err error) {
	h.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		h.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (h *PrometheusHooks) OnRunComplete(ctx context.Context, recipe, state string, duration time.Duration, err error) {
	h.runsInFlight.Dec()
	h.runsTotal.WithLabelValues(recipe, state).Inc()
	h.runDuration.WithLabelValues(recipe).Observe(duration.Seconds())
}

func (h *PrometheusHooks) OnCacheHit(ctx context.Context, keyType string) {
	h.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

func (h *PrometheusHooks) OnCacheMiss(ctx context.Context, keyType string) {
	h.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

func (h *PrometheusHooks) OnCacheSet(ctx context.Context, keyType string, size int) {
	h.cacheEvents.WithLabelValues(keyType, "set").Inc()
	h.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (h *PrometheusHooks) OnCommand(ctx context.Context, tool, step string, duration time.Duration, err error) {
	h.toolDuration.WithLabelValues(tool, step).Observe(duration.Seconds())
	if err != nil {
		h.toolErrors.WithLabelValues(tool, step).Inc()
	}
}

var (
	_ LifecycleHooks = (*PrometheusHooks)(nil)
	_ CacheHooks     = (*PrometheusHooks)(nil)
	_ ToolHooks      = (*PrometheusHooks)(nil)
)

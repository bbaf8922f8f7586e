// Package metrics exposes Prometheus instrumentation for the analysis pipeline
// and the HTTP API on a private registry.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fiscalclm/clm/internal/domain"
)

// Collector owns the registry and every metric the service reports.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	analyses         prometheus.Counter
	analysisDuration prometheus.Histogram
	scores           prometheus.Histogram
	alerts           *prometheus.CounterVec
	ruleLoads        *prometheus.CounterVec
	rulesLoaded      prometheus.Gauge
	contractOps      *prometheus.CounterVec
	draftStatus      *prometheus.CounterVec
	events           *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewCollector registers all metrics under namespace ("clm" when empty).
func NewCollector(namespace string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = "clm"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(registry)

	return &Collector{
		registry: registry,
		logger:   logger,
		analyses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fiscal_analyses_total",
			Help:      "Total number of contract fiscal analyses",
		}),
		analysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fiscal_analysis_duration_seconds",
			Help:      "Time taken to evaluate rules and score a contract",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}),
		scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fiscal_score_distribution",
			Help:      "Distribution of contract fiscal scores",
			Buckets:   []float64{0, 20, 40, 60, 80, 100},
		}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fiscal_alerts_total",
			Help:      "Fiscal alerts emitted, by type and code",
		}, []string{"type", "code"}),
		ruleLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Extension rule reloads, by outcome",
		}, []string{"outcome"}),
		rulesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of extension rules currently loaded",
		}),
		contractOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_operations_total",
			Help:      "Contract store operations, by action",
		}, []string{"action"}),
		draftStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_transitions_total",
			Help:      "Contract draft status changes, by new status",
		}, []string{"status"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Bus events published, by topic and outcome",
		}, []string{"topic", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordAnalysis records one evaluated contract.
func (m *Collector) RecordAnalysis(a *domain.Analysis, duration time.Duration) {
	if m == nil || a == nil {
		return
	}
	m.analyses.Inc()
	m.analysisDuration.Observe(duration.Seconds())
	m.scores.Observe(float64(a.Score))
	for _, alert := range a.Alerts {
		m.alerts.WithLabelValues(string(alert.Type), alert.Code).Inc()
	}
}

// RecordRuleReload records a reload attempt and the resulting rule count.
func (m *Collector) RecordRuleReload(loaded int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ruleLoads.WithLabelValues("error").Inc()
		return
	}
	m.ruleLoads.WithLabelValues("ok").Inc()
	m.rulesLoaded.Set(float64(loaded))
}

// RecordContractOp counts a create, update or delete.
func (m *Collector) RecordContractOp(action string) {
	if m == nil {
		return
	}
	m.contractOps.WithLabelValues(action).Inc()
}

// RecordDraftTransition counts a draft entering status.
func (m *Collector) RecordDraftTransition(status domain.DraftStatus) {
	if m == nil {
		return
	}
	m.draftStatus.WithLabelValues(status.String()).Inc()
}

// RecordEvent counts a publish attempt on topic.
func (m *Collector) RecordEvent(topic string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.events.WithLabelValues(topic, outcome).Inc()
}

// RecordHTTP records one served request. route is the matched pattern, not the raw path.
func (m *Collector) RecordHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Collector) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(m.logger.Handler(), slog.LevelError),
	})
}

// Registry returns the private registry.
func (m *Collector) Registry() *prometheus.Registry {
	return m.registry
}

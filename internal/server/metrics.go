package server

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/triageops/triage/internal/ai"
	"github.com/triageops/triage/internal/storage"
	"github.com/triageops/triage/internal/types"
)

// Metrics holds the front door's Prometheus instruments
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	issuesCreated     *prometheus.CounterVec
	analysesTotal     *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	wsConnections     prometheus.Gauge
	slackEvents       *prometheus.CounterVec
}

// NewMetrics creates and registers the front door metrics. A nil registry
// gets a private one, which keeps tests isolated from each other.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		issuesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_issues_created_total",
			Help: "Issues created, by source.",
		}, []string{"source"}),
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_analyses_total",
			Help: "Finished analysis runs, by outcome.",
		}, []string{"outcome"}),
		inferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_inference_duration_seconds",
			Help:    "Latency of inference calls, including retries.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triage_ws_connections_active",
			Help: "Currently open WebSocket subscriptions.",
		}),
		slackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_slack_events_total",
			Help: "Slack events received, by type.",
		}, []string{"type"}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.issuesCreated,
		m.analysesTotal, m.inferenceDuration, m.wsConnections, m.slackEvents)
	return m
}

// Registry exposes the registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one served request
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// IssueCreated counts a created issue
func (m *Metrics) IssueCreated(source string) {
	m.issuesCreated.WithLabelValues(source).Inc()
}

// WSConnected counts a WebSocket subscription opening
func (m *Metrics) WSConnected() {
	m.wsConnections.Inc()
}

// WSDisconnected counts a WebSocket subscription closing
func (m *Metrics) WSDisconnected() {
	m.wsConnections.Dec()
}

// SlackEvent counts a received Slack event
func (m *Metrics) SlackEvent(eventType string) {
	m.slackEvents.WithLabelValues(eventType).Inc()
}

// AnalysisFinished counts a finished analysis run by outcome. Claim
// conflicts are counted separately: the record is being handled, just not
// by this worker.
func (m *Metrics) AnalysisFinished(err error) {
	outcome := "completed"
	switch {
	case errors.Is(err, storage.ErrClaimConflict):
		outcome = "claim_conflict"
	case err != nil:
		outcome = "failed"
	}
	m.analysesTotal.WithLabelValues(outcome).Inc()
}

// WrapCompleter instruments a completer with inference latency
func (m *Metrics) WrapCompleter(inner ai.Completer) ai.Completer {
	return &timedCompleter{inner: inner, metrics: m}
}

type timedCompleter struct {
	inner   ai.Completer
	metrics *Metrics
}

func (c *timedCompleter) Complete(ctx context.Context, transcript []*types.Message) (string, error) {
	start := time.Now()
	text, err := c.inner.Complete(ctx, transcript)
	c.metrics.inferenceDuration.Observe(time.Since(start).Seconds())
	return text, err
}

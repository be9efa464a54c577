// Package metrics exposes prometheus instruments for the publishing pipeline.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// PipelineMetrics captures outbox and post lifecycle health signals.
type PipelineMetrics struct {
	jobsEnqueued     *prometheus.CounterVec
	jobsDispatched   *prometheus.CounterVec
	jobsCompleted    *prometheus.CounterVec
	jobsRequeued     prometheus.Counter
	dispatchDuration prometheus.Histogram
	queueDepth       prometheus.Gauge
	postTransitions  *prometheus.CounterVec
}

var (
	pipelineOnce    sync.Once
	pipelineMetrics *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &PipelineMetrics{
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdesk_outbox_jobs_enqueued_total",
			Help: "Outbox jobs recorded, by job type.",
		}, []string{"type"}),
		jobsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdesk_outbox_jobs_dispatched_total",
			Help: "Outbox jobs handed to the sender, by job type.",
		}, []string{"type"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdesk_outbox_jobs_completed_total",
			Help: "Outbox job completions, by job type and outcome.",
		}, []string{"type", "outcome"}),
		jobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postdesk_outbox_jobs_requeued_total",
			Help: "Pending jobs re-discovered by the reconciliation sweep.",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postdesk_outbox_dispatch_duration_seconds",
			Help:    "Time spent delivering a job to the sender.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postdesk_outbox_queue_depth",
			Help: "Jobs currently buffered in the dispatcher queue.",
		}),
		postTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdesk_post_transitions_total",
			Help: "Post status transitions, by from and to status.",
		}, []string{"from", "to"}),
	}

	for _, collector := range []prometheus.Collector{
		m.jobsEnqueued,
		m.jobsDispatched,
		m.jobsCompleted,
		m.jobsRequeued,
		m.dispatchDuration,
		m.queueDepth,
		m.postTransitions,
	} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}

func (m *PipelineMetrics) IncJobEnqueued(jobType string) {
	m.jobsEnqueued.WithLabelValues(normalizeLabel(jobType)).Inc()
}

func (m *PipelineMetrics) IncJobDispatched(jobType string) {
	m.jobsDispatched.WithLabelValues(normalizeLabel(jobType)).Inc()
}

func (m *PipelineMetrics) IncJobCompleted(jobType, outcome string) {
	m.jobsCompleted.WithLabelValues(normalizeLabel(jobType), normalizeLabel(outcome)).Inc()
}

func (m *PipelineMetrics) IncJobRequeued() {
	m.jobsRequeued.Inc()
}

func (m *PipelineMetrics) ObserveDispatch(d time.Duration) {
	m.dispatchDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *PipelineMetrics) IncPostTransition(from, to string) {
	m.postTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}

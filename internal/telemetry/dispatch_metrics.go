package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchMetrics holds Prometheus metrics for the send pipeline.
// All methods are safe to call on a nil receiver so the scheduler can run
// without metrics in tests.
type DispatchMetrics struct {
	// Runs
	RunsStarted   prometheus.Counter
	RunsCompleted *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	RunRecipients prometheus.Histogram

	// Per-recipient delivery
	EmailSent      prometheus.Counter
	EmailFailed    *prometheus.CounterVec
	SendDuration   *prometheus.HistogramVec
	SendsInFlight  prometheus.Gauge
	TaskFaults     prometheus.Counter
	AttachmentMiss prometheus.Counter

	// Progress fan-out
	ProgressPublished *prometheus.CounterVec
}

// NewDispatchMetrics creates the pipeline metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewDispatchMetrics(namespace string, reg prometheus.Registerer) *DispatchMetrics {
	if namespace == "" {
		namespace = "courier"
	}

	subsystem := "dispatch"
	factory := promauto.With(reg)

	return &DispatchMetrics{
		// =======================================================================
		// Runs
		// =======================================================================
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_started_total",
			Help:      "Total dispatch runs that passed pre-flight",
		}),
		RunsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_completed_total",
				Help:      "Total dispatch runs by result",
			},
			[]string{"result"}, // result: all_sent, partial, all_failed, aborted
		),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a dispatch run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		RunRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_recipients",
			Help:      "Number of recipients per run",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		// =======================================================================
		// Delivery
		// =======================================================================
		EmailSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "email_sent_total",
			Help:      "Total messages accepted by the SMTP server",
		}),
		EmailFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "email_failed_total",
				Help:      "Total messages that failed to send",
			},
			[]string{"reason"}, // reason: auth, connect, cancelled, fault, other
		),
		SendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "send_duration_seconds",
				Help:      "Time spent building and delivering one message",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		SendsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sends_in_flight",
			Help:      "Messages currently being delivered",
		}),
		TaskFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_faults_total",
			Help:      "Send tasks that panicked and were counted as failures",
		}),
		AttachmentMiss: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attachment_missing_total",
			Help:      "Attachments or posters skipped because the staged file was gone",
		}),

		ProgressPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "progress_events_total",
				Help:      "Progress events published by status",
			},
			[]string{"status"},
		),
	}
}

// SendStarted marks one delivery as in flight.
func (m *DispatchMetrics) SendStarted() {
	if m == nil {
		return
	}
	m.SendsInFlight.Inc()
}

// SendFinished records the end of one delivery.
// reason is empty for a successful send.
func (m *DispatchMetrics) SendFinished(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.SendsInFlight.Dec()
	if reason == "" {
		m.EmailSent.Inc()
		m.SendDuration.WithLabelValues("sent").Observe(d.Seconds())
		return
	}
	m.EmailFailed.WithLabelValues(reasonLabel(reason)).Inc()
	m.SendDuration.WithLabelValues("failed").Observe(d.Seconds())
}

// Cancelled records a task that was never submitted.
func (m *DispatchMetrics) Cancelled() {
	if m == nil {
		return
	}
	m.EmailFailed.WithLabelValues("cancelled").Inc()
}

// Fault records a task that panicked.
func (m *DispatchMetrics) Fault() {
	if m == nil {
		return
	}
	m.TaskFaults.Inc()
}

// MissingAttachment records a skipped attachment or poster.
func (m *DispatchMetrics) MissingAttachment() {
	if m == nil {
		return
	}
	m.AttachmentMiss.Inc()
}

// Published records one progress event.
func (m *DispatchMetrics) Published(status string) {
	if m == nil {
		return
	}
	m.ProgressPublished.WithLabelValues(status).Inc()
}

// RunStarted records a run that passed pre-flight.
func (m *DispatchMetrics) RunStarted(recipients int) {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
	m.RunRecipients.Observe(float64(recipients))
}

// RunFinished records the result of a run.
func (m *DispatchMetrics) RunFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsCompleted.WithLabelValues(result).Inc()
	if result != "aborted" {
		m.RunDuration.Observe(d.Seconds())
	}
}

// reasonLabel keeps label cardinality bounded: free-form SMTP diagnostics
// collapse to "other".
func reasonLabel(reason string) string {
	switch reason {
	case "auth", "connect", "cancelled", "fault":
		return reason
	default:
		return "other"
	}
}

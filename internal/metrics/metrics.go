package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "nq"

	// Subsystems
	Queue   = "queue"
	Session = "session"
	Sender  = "sender"

	// Status label values for signal metrics
	StatusSuccess = "success"
	StatusError   = "error"
)

// Labels holds constant labels applied to all metrics.
// These distinguish metrics from several channels or roles in one process.
type Labels struct {
	Channel string // Region name of the channel
	Role    string // "initiator" or "responder"
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Channel != "" {
		labels["channel"] = l.Channel
	}
	if l.Role != "" {
		labels["role"] = l.Role
	}
	return labels
}

type Metrics struct {
	// Queue traffic, by direction
	enqueued  *prometheus.CounterVec
	queueFull *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	dequeued  *prometheus.CounterVec
	depth     *prometheus.GaugeVec
	signals   *prometheus.CounterVec // by direction, status
	recvWait  prometheus.Histogram

	// Session dispatch
	dispatched      *prometheus.CounterVec // by payload kind
	unknownSession  prometheus.Counter
	inactiveSession prometheus.Counter
	controlPlane    prometheus.Counter
	openSessions    prometheus.Gauge

	// Outbound sender
	senderBacklog prometheus.Gauge
	senderErrors  prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "enqueued_total",
			Help:      "Total notifications written to the outbound queue",
		}, []string{"direction"}),
		queueFull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "full_total",
			Help:      "Total enqueue attempts rejected because the queue was full",
		}, []string{"direction"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "dropped_total",
			Help:      "Total notifications discarded by the drop policy",
		}, []string{"direction"}),
		dequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "dequeued_total",
			Help:      "Total notifications read from the inbound queue",
		}, []string{"direction"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "depth",
			Help:      "Unread notifications observed after the last operation",
		}, []string{"direction"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "signals_total",
			Help:      "Total wake signals sent to the peer by status",
		}, []string{"direction", "status"}),
		recvWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "recv_wait_seconds",
			Help:      "Time a blocking receive waited for a notification",
			Buckets:   []float64{.00001, .0001, .001, .01, .1, 1, 10},
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Session,
			Name:      "dispatched_total",
			Help:      "Total notifications delivered to sessions by payload kind",
		}, []string{"kind"}),
		unknownSession: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Session,
			Name:      "unknown_total",
			Help:      "Total notifications addressed to an unknown session",
		}),
		inactiveSession: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Session,
			Name:      "inactive_total",
			Help:      "Total notifications addressed to a terminated session",
		}),
		controlPlane: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Session,
			Name:      "control_total",
			Help:      "Total notifications on the control-plane session",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Session,
			Name:      "open",
			Help:      "Number of registered sessions",
		}),
		senderBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Sender,
			Name:      "backlog",
			Help:      "Notifications waiting for the sender goroutine",
		}),
		senderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sender,
			Name:      "errors_total",
			Help:      "Total notifications the sender failed to enqueue",
		}),
	}

	err := errors.Join(
		reg.Register(m.enqueued),
		reg.Register(m.queueFull),
		reg.Register(m.dropped),
		reg.Register(m.dequeued),
		reg.Register(m.depth),
		reg.Register(m.signals),
		reg.Register(m.recvWait),
		reg.Register(m.dispatched),
		reg.Register(m.unknownSession),
		reg.Register(m.inactiveSession),
		reg.Register(m.controlPlane),
		reg.Register(m.openSessions),
		reg.Register(m.senderBacklog),
		reg.Register(m.senderErrors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordEnqueue records a successful enqueue and the resulting queue depth.
func (m *Metrics) RecordEnqueue(direction string, depth int) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(direction).Inc()
	m.depth.WithLabelValues(direction).Set(float64(depth))
}

// IncQueueFull counts an enqueue rejected with a full queue.
func (m *Metrics) IncQueueFull(direction string) {
	if m == nil {
		return
	}
	m.queueFull.WithLabelValues(direction).Inc()
}

// IncDropped counts a notification discarded by the drop policy.
func (m *Metrics) IncDropped(direction string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(direction).Inc()
}

// RecordDequeue records a dequeued notification and the remaining depth.
func (m *Metrics) RecordDequeue(direction string, depth int) {
	if m == nil {
		return
	}
	m.dequeued.WithLabelValues(direction).Inc()
	m.depth.WithLabelValues(direction).Set(float64(depth))
}

// RecordSignal records a wake signal sent to the peer.
func (m *Metrics) RecordSignal(direction string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.signals.WithLabelValues(direction, status).Inc()
}

// ObserveRecvWait records how long a blocking receive waited.
func (m *Metrics) ObserveRecvWait(seconds float64) {
	if m == nil {
		return
	}
	m.recvWait.Observe(seconds)
}

// IncDispatched counts a notification delivered to a session.
func (m *Metrics) IncDispatched(kind string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(kind).Inc()
}

// IncUnknownSession counts a notification for an unregistered session.
func (m *Metrics) IncUnknownSession() {
	if m == nil {
		return
	}
	m.unknownSession.Inc()
}

// IncInactiveSession counts a notification for a terminated session.
func (m *Metrics) IncInactiveSession() {
	if m == nil {
		return
	}
	m.inactiveSession.Inc()
}

// IncControlPlane counts a notification on the control-plane session.
func (m *Metrics) IncControlPlane() {
	if m == nil {
		return
	}
	m.controlPlane.Inc()
}

// SetOpenSessions sets the number of registered sessions.
func (m *Metrics) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

// SetSenderBacklog sets the number of notifications waiting for the sender.
func (m *Metrics) SetSenderBacklog(n int) {
	if m == nil {
		return
	}
	m.senderBacklog.Set(float64(n))
}

// IncSenderErrors counts a notification the sender could not enqueue.
func (m *Metrics) IncSenderErrors() {
	if m == nil {
		return
	}
	m.senderErrors.Inc()
}

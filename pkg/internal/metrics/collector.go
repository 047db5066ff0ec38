package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gathering"

// Collector is a prometheus.Collector over the session, recording and
// realtime counters. A nil *Collector is valid and records nothing.
type Collector struct {
	transitions    *prometheus.CounterVec
	recordingCalls *prometheus.CounterVec
	reconciled     prometheus.Counter
	onlineUsers    prometheus.Gauge
	droppedEvents  *prometheus.CounterVec
	detachedFaults *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Session lifecycle transitions by target status and outcome.",
			}, []string{"status", "result"},
		),
		recordingCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recording_vendor_calls_total",
				Help:      "Calls issued to the recording vendor by phase and outcome.",
			}, []string{"phase", "result"},
		),
		reconciled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recording_reconciled_total",
				Help:      "Recordings materialized into the video catalog.",
			},
		),
		onlineUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "presence_online_users",
				Help:      "Users holding at least one live connection on this instance.",
			},
		),
		droppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_dropped_events_total",
				Help:      "Volatile events dropped by reason.",
			}, []string{"reason"},
		),
		detachedFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detached_task_failures_total",
				Help:      "Detached background tasks that returned an error or panicked.",
			}, []string{"task"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.transitions.Describe(ch)
	c.recordingCalls.Describe(ch)
	c.reconciled.Describe(ch)
	c.onlineUsers.Describe(ch)
	c.droppedEvents.Describe(ch)
	c.detachedFaults.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.transitions.Collect(ch)
	c.recordingCalls.Collect(ch)
	c.reconciled.Collect(ch)
	c.onlineUsers.Collect(ch)
	c.droppedEvents.Collect(ch)
	c.detachedFaults.Collect(ch)
}

func (c *Collector) Transition(status string, err error) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status, outcome(err)).Inc()
}

func (c *Collector) VendorCall(phase string, err error) {
	if c == nil {
		return
	}
	c.recordingCalls.WithLabelValues(phase, outcome(err)).Inc()
}

func (c *Collector) Reconciled() {
	if c == nil {
		return
	}
	c.reconciled.Inc()
}

func (c *Collector) UserOnline() {
	if c == nil {
		return
	}
	c.onlineUsers.Inc()
}

func (c *Collector) UserOffline() {
	if c == nil {
		return
	}
	c.onlineUsers.Dec()
}

func (c *Collector) Dropped(reason string) {
	if c == nil {
		return
	}
	c.droppedEvents.WithLabelValues(reason).Inc()
}

func (c *Collector) DetachedFailure(task string) {
	if c == nil {
		return
	}
	c.detachedFaults.WithLabelValues(task).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

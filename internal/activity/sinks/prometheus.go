package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/mediavid-client/internal/activity"
)

// PrometheusSink exports client activity via Prometheus collectors.
type PrometheusSink struct {
	events       *prometheus.CounterVec
	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	autoTriggers prometheus.Counter
	transfers    *prometheus.CounterVec
	bytes        prometheus.Counter
	transferDur  prometheus.Histogram
	stages       *prometheus.CounterVec
	channelsOpen prometheus.Gauge

	sessions *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediavid_activity_events_total",
			Help: "Activity events partitioned by kind.",
		}, []string{"kind"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediavid_queue_polls_total",
			Help: "Queue polls partitioned by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediavid_queue_poll_duration_seconds",
			Help:    "Latency of successful queue polls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		autoTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediavid_auto_downloads_total",
			Help: "Automatic downloads triggered for completed items.",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediavid_transfers_total",
			Help: "Finished transfers partitioned by result.",
		}, []string{"result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediavid_transfer_bytes_total",
			Help: "Bytes written to storage by transfers.",
		}),
		transferDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediavid_transfer_duration_seconds",
			Help:    "Wall time per successful transfer.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediavid_progress_stages_total",
			Help: "Progress channel events partitioned by stage.",
		}, []string{"stage"}),
		channelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediavid_progress_channels_open",
			Help: "Progress channels currently open.",
		}),
		sessions: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.polls,
		s.pollDuration,
		s.autoTriggers,
		s.transfers,
		s.bytes,
		s.transferDur,
		s.stages,
		s.channelsOpen,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register activity collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []activity.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt activity.Event) {
	s.events.WithLabelValues(string(evt.Kind)).Inc()
	switch evt.Kind {
	case activity.KindPollOK:
		s.polls.WithLabelValues("ok").Inc()
		if evt.Dur > 0 {
			s.pollDuration.Observe(evt.Dur.Seconds())
		}
	case activity.KindPollFailed:
		s.polls.WithLabelValues("error").Inc()
	case activity.KindAutoDownload:
		s.autoTriggers.Inc()
	case activity.KindTransferDone:
		s.transfers.WithLabelValues("success").Inc()
		if evt.Bytes > 0 {
			s.bytes.Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.transferDur.Observe(evt.Dur.Seconds())
		}
	case activity.KindTransferFailed:
		s.transfers.WithLabelValues("error").Inc()
	case activity.KindProgressStage:
		stage := evt.Stage
		if stage == "" {
			stage = "unknown"
		}
		s.stages.WithLabelValues(stage).Inc()
	case activity.KindChannelOpened:
		if s.sessions.open(evt.Session) {
			s.channelsOpen.Inc()
		}
	case activity.KindChannelClosed:
		if s.sessions.close(evt.Session) {
			s.channelsOpen.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{active: make(map[string]struct{})}
}

func (t *sessionTracker) open(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *sessionTracker) close(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}

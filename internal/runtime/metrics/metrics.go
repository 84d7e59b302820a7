// Package metrics owns the Prometheus collectors of the relay and its
// client sessions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fluxnotify"

// Transport labels.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
)

// Metrics groups every collector. The zero value is not usable; build one
// with New.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	received        prometheus.Counter
	decodeFailures  prometheus.Counter
	ackFailures     prometheus.Counter
	published       prometheus.Counter
	unobserved      prometheus.Counter
	processDuration prometheus.Histogram

	sessionsActive   *prometheus.GaugeVec
	sessionsTotal    *prometheus.CounterVec
	framesSent       *prometheus.CounterVec
	laggedEvents     *prometheus.CounterVec
	filteredEvents   prometheus.Counter
	subscribeCommand prometheus.Counter
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newSessionCounterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      name,
			Help:      help,
		},
		[]string{"transport"},
	)
}

// New creates the collectors. A nil registerer selects a private registry, so
// metrics can always be recorded even when they are not exposed.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	return &Metrics{
		registerer:     registerer,
		received:       newCounter("relay", "messages_received_total", "Raw messages taken from the event source"),
		decodeFailures: newCounter("relay", "decode_failures_total", "Raw messages dropped because they could not be decoded"),
		ackFailures:    newCounter("relay", "ack_failures_total", "Acknowledgements refused by the event source"),
		published:      newCounter("relay", "events_published_total", "Events published to the fan-out hub"),
		unobserved:     newCounter("relay", "events_unobserved_total", "Events discarded because no session was connected"),
		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "process_duration_seconds",
			Help:      "Time from receiving a raw message to acknowledging it",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Currently open client sessions",
			},
			[]string{"transport"},
		),
		sessionsTotal:    newSessionCounterVec("opened_total", "Client sessions opened"),
		framesSent:       newSessionCounterVec("frames_sent_total", "Event frames written to clients"),
		laggedEvents:     newSessionCounterVec("lagged_events_total", "Events a session skipped because it fell behind"),
		filteredEvents:   newCounter("session", "filtered_events_total", "Events withheld by a connection's stream subscription"),
		subscribeCommand: newCounter("session", "subscribe_commands_total", "Subscribe commands received from clients"),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.received,
		m.decodeFailures,
		m.ackFailures,
		m.published,
		m.unobserved,
		m.processDuration,
		m.sessionsActive,
		m.sessionsTotal,
		m.framesSent,
		m.laggedEvents,
		m.filteredEvents,
		m.subscribeCommand,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) MessageReceived()  { m.received.Inc() }
func (m *Metrics) DecodeFailed()     { m.decodeFailures.Inc() }
func (m *Metrics) AckFailed()        { m.ackFailures.Inc() }
func (m *Metrics) EventPublished()   { m.published.Inc() }
func (m *Metrics) EventUnobserved()  { m.unobserved.Inc() }
func (m *Metrics) EventFiltered()    { m.filteredEvents.Inc() }
func (m *Metrics) SubscribeCommand() { m.subscribeCommand.Inc() }

// MessageProcessed records the time spent on one raw message.
func (m *Metrics) MessageProcessed(d time.Duration) {
	m.processDuration.Observe(d.Seconds())
}

// SessionOpened records a new session and returns the function that records
// its end.
func (m *Metrics) SessionOpened(transport string) func() {
	m.sessionsTotal.WithLabelValues(transport).Inc()
	active := m.sessionsActive.WithLabelValues(transport)
	active.Inc()

	var once sync.Once
	return func() { once.Do(active.Dec) }
}

func (m *Metrics) FrameSent(transport string) {
	m.framesSent.WithLabelValues(transport).Inc()
}

func (m *Metrics) Lagged(transport string, count uint64) {
	m.laggedEvents.WithLabelValues(transport).Add(float64(count))
}

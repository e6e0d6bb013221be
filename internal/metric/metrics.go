// Package metric exposes the relay's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metric

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relaybot"

// Metrics contains the relay's collectors
type Metrics struct {
	LinesReceived *prometheus.CounterVec
	LinesUnparsed *prometheus.CounterVec
	Relays        *prometheus.CounterVec
	FilterErrors  *prometheus.CounterVec
	Reconnects    *prometheus.CounterVec
	Connected     *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		LinesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_received_total",
				Help:      "Protocol lines received per network",
			},
			[]string{"network"},
		),
		LinesUnparsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_unparsed_total",
				Help:      "Protocol lines dropped because they could not be parsed",
			},
			[]string{"network"},
		),
		Relays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relays_total",
				Help:      "Messages relayed, by source and destination network",
			},
			[]string{"source", "destination"},
		),
		FilterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_errors_total",
				Help:      "Bind filter or transform failures",
			},
			[]string{"bind"},
		),
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Reconnect decisions, by network and failure kind",
			},
			[]string{"network", "kind"},
		),
		Connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "network_connected",
				Help:      "1 while the network is registered, 0 otherwise",
			},
			[]string{"network"},
		),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	if m.LinesReceived, err = register(reg, m.LinesReceived); err != nil {
		return nil, err
	}
	if m.LinesUnparsed, err = register(reg, m.LinesUnparsed); err != nil {
		return nil, err
	}
	if m.Relays, err = register(reg, m.Relays); err != nil {
		return nil, err
	}
	if m.FilterErrors, err = register(reg, m.FilterErrors); err != nil {
		return nil, err
	}
	if m.Reconnects, err = register(reg, m.Reconnects); err != nil {
		return nil, err
	}
	if m.Connected, err = register(reg, m.Connected); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) LineReceived(network string) {
	if m == nil {
		return
	}
	m.LinesReceived.WithLabelValues(network).Inc()
}

func (m *Metrics) LineUnparsed(network string) {
	if m == nil {
		return
	}
	m.LinesUnparsed.WithLabelValues(network).Inc()
}

func (m *Metrics) Relayed(source, destination string) {
	if m == nil {
		return
	}
	m.Relays.WithLabelValues(source, destination).Inc()
}

func (m *Metrics) FilterFailed(bind string) {
	if m == nil {
		return
	}
	m.FilterErrors.WithLabelValues(bind).Inc()
}

func (m *Metrics) Reconnect(network, kind string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(network, kind).Inc()
}

// SetConnected flips the connected gauge for a network
func (m *Metrics) SetConnected(network string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.Connected.WithLabelValues(network).Set(v)
}

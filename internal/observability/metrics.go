// Package observability exposes simulation metrics to Prometheus and sets up
// OpenTelemetry tracing.
package observability

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/railsim/internal/sim"
)

// Collector bundles the simulation's Prometheus metrics. It implements
// sim.Metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Segments      prometheus.Gauge
	Intersections prometheus.Gauge
	Trains        prometheus.Gauge

	Mutations     *prometheus.CounterVec
	Routes        *prometheus.CounterVec
	Reservations  *prometheus.CounterVec
	GraphRebuilds prometheus.Counter
	Trips         prometheus.Counter

	RouteSearch *prometheus.HistogramVec
}

var _ sim.Metrics = (*Collector)(nil)

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Metrics already registered by an earlier
// collector are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	var errs []error
	gauge := func(name, help string) prometheus.Gauge {
		g, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}), name)
		errs = append(errs, err)
		return g
	}
	counter := func(name, help string) prometheus.Counter {
		c, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}), name)
		errs = append(errs, err)
		return c
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		c, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels), name)
		errs = append(errs, err)
		return c
	}

	c := &Collector{
		gatherer:      gatherer,
		Segments:      gauge("railsim_segments", "Current number of segments in the network."),
		Intersections: gauge("railsim_intersections", "Current number of intersections in the network."),
		Trains:        gauge("railsim_trains", "Current number of trains on the network."),
		Mutations:     counterVec("railsim_mutations_total", "Topology mutations attempted, labeled by operation and result.", "op", "result"),
		Routes:        counterVec("railsim_routes_total", "Route requests, labeled by algorithm and result.", "algorithm", "result"),
		Reservations:  counterVec("railsim_reservations_total", "Block requests made at segment boundaries, labeled by result.", "result"),
		GraphRebuilds: counter("railsim_graph_rebuilds_total", "Navigation graph rebuilds after topology changes."),
		Trips:         counter("railsim_trips_total", "Trips completed."),
	}

	search, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railsim_route_search_seconds",
		Help:    "Route search latency in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"algorithm"}), "railsim_route_search_seconds")
	errs = append(errs, err)
	c.RouteSearch = search

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveMutation implements sim.Metrics.
func (c *Collector) ObserveMutation(op, result string) {
	c.Mutations.WithLabelValues(op, result).Inc()
}

// ObserveRoute implements sim.Metrics.
func (c *Collector) ObserveRoute(algorithm, result string, seconds float64) {
	c.Routes.WithLabelValues(algorithm, result).Inc()
	c.RouteSearch.WithLabelValues(algorithm).Observe(seconds)
}

// ObserveReservation implements sim.Metrics.
func (c *Collector) ObserveReservation(result string) {
	c.Reservations.WithLabelValues(result).Inc()
}

// ObserveGraphRebuild implements sim.Metrics.
func (c *Collector) ObserveGraphRebuild() {
	c.GraphRebuilds.Inc()
}

// ObserveTrip implements sim.Metrics.
func (c *Collector) ObserveTrip() {
	c.Trips.Inc()
}

// SetTopology implements sim.Metrics.
func (c *Collector) SetTopology(segments, intersections, trains int) {
	c.Segments.Set(float64(segments))
	c.Intersections.Set(float64(intersections))
	c.Trains.Set(float64(trains))
}

// register adds col to reg, returning the existing collector if one of the
// same type is already registered under that name.
func register[C prometheus.Collector](reg prometheus.Registerer, col C, name string) (C, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			return col, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return col, err
	}
	return col, nil
}

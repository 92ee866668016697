package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"

	"github.com/vovakirdan/railsim/internal/config"
	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/sim"
)

func TestCollectorCountsWorld(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	w := sim.New(sim.WithMetrics(collector))
	defer w.Close()
	c, _ := curve.Straight(core.V(0, 0), core.V(20, 0))
	seg, err := w.AddSegment(c, network.AtPoint(core.V(0, 0)), network.AtPoint(core.V(20, 0)))
	if err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	c, _ = curve.Straight(core.V(20, 0), core.V(20.5, 0))
	if _, err := w.AddSegment(c, network.AtPoint(core.V(20, 0)), network.AtPoint(core.V(20.5, 0))); err == nil {
		t.Fatal("a half-unit segment should be rejected")
	}
	if _, err := w.PlaceTrain("T1", seg, 0.5, network.Forward, 5); err != nil {
		t.Fatalf("PlaceTrain: %v", err)
	}

	if got := testutil.ToFloat64(collector.Mutations.WithLabelValues("add_segment", "ok")); got != 1 {
		t.Errorf("railsim_mutations_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Mutations.WithLabelValues("add_segment", "degenerate_curve")); got != 1 {
		t.Errorf("railsim_mutations_total{degenerate_curve} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Segments); got != 1 {
		t.Errorf("railsim_segments = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Trains); got != 1 {
		t.Errorf("railsim_trains = %v, want 1", got)
	}
}

func TestObserveRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.ObserveRoute("astar", "ok", 0.002)
	collector.ObserveRoute("astar", "no_route", 0.001)

	if got := testutil.ToFloat64(collector.Routes.WithLabelValues("astar", "ok")); got != 1 {
		t.Errorf("railsim_routes_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "railsim_route_search_seconds", map[string]string{"algorithm": "astar"}); count != 2 {
		t.Errorf("railsim_route_search_seconds sample_count = %d, want 2", count)
	}
}

func TestCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.ObserveTrip()
	second.ObserveTrip()
	if got := testutil.ToFloat64(first.Trips); got != 2 {
		t.Errorf("railsim_trips_total = %v, want 2 shared between collectors", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.SetTopology(3, 4, 5)
	collector.ObserveReservation("denied")
	collector.ObserveGraphRebuild()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"railsim_segments 3",
		"railsim_intersections 4",
		"railsim_trains 5",
		`railsim_reservations_total{result="denied"} 1`,
		"railsim_graph_rebuilds_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in /metrics output", want)
		}
	}
}

func TestInitTracing(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitTracing(ctx, config.TraceConfig{Enabled: false}, nil, nil)
	if err != nil {
		t.Fatalf("InitTracing(disabled): %v", err)
	}
	ShutdownWithTimeout(ctx, shutdown, nil)

	if _, err := InitTracing(ctx, config.TraceConfig{Enabled: true, Exporter: "otlp"}, nil, nil); err == nil {
		t.Error("unsupported exporter should fail")
	}

	var buf bytes.Buffer
	shutdown, err = InitTracing(ctx, config.TraceConfig{Enabled: true, Exporter: "stdout", ServiceName: "railsim-test"}, &buf, nil)
	if err != nil {
		t.Fatalf("InitTracing(stdout): %v", err)
	}
	_, span := otel.Tracer("test").Start(ctx, "sim/add_segment")
	span.End()
	ShutdownWithTimeout(ctx, shutdown, nil)

	if !strings.Contains(buf.String(), "sim/add_segment") {
		t.Errorf("span not exported: %q", buf.String())
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

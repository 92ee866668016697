package navgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vovakirdan/railsim/internal/network"
)

const tracerName = "github.com/vovakirdan/railsim/internal/navgraph"

// Request asks for a route to Destination. When Directed is set the search
// leaves through From only; otherwise either side of From.Intersection may
// be used.
type Request struct {
	From        Port
	Directed    bool
	Destination network.IntersectionID
	Options     []Option
}

// Result is the outcome of a planned request.
type Result struct {
	Request Request
	Route   Route
	Err     error
}

// Planner computes routes against the cached graph, either inline or in a
// background goroutine.
type Planner struct {
	cache *Cache
	src   Source
	wg    sync.WaitGroup
}

// NewPlanner returns a planner reading graphs from cache and checking
// freshness against src.
func NewPlanner(cache *Cache, src Source) *Planner {
	return &Planner{cache: cache, src: src}
}

// Route plans synchronously.
func (p *Planner) Route(ctx context.Context, req Request) (Route, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "navgraph/route")
	defer span.End()
	span.SetAttributes(
		attribute.String("from", req.From.String()),
		attribute.String("destination", req.Destination.String()),
		attribute.Bool("directed", req.Directed),
	)

	g := p.cache.Graph()
	opts := append([]Option{WithContext(ctx)}, req.Options...)
	var (
		r   Route
		err error
	)
	if req.Directed {
		r, err = FindRouteFrom(g, req.From, req.Destination, opts...)
	} else {
		r, err = FindRoute(g, req.From.Intersection, req.Destination, opts...)
	}
	if err == nil && p.src.Version() != g.Version {
		err = fmt.Errorf("%w: planned on version %d, network at %d", ErrStaleRoute, g.Version, p.src.Version())
	}
	if err != nil {
		if !errors.Is(err, ErrNoRoute) {
			span.SetStatus(codes.Error, err.Error())
		}
		span.RecordError(err)
		return Route{}, err
	}
	span.SetAttributes(
		attribute.Int("legs", len(r.Legs)),
		attribute.Float64("distance", r.Distance),
		attribute.Int64("version", int64(r.Version)),
	)
	return r, nil
}

// Plan computes the route in the background. The channel receives exactly
// one Result and is then closed. A result computed against a graph the
// network has since moved past carries ErrStaleRoute.
func (p *Planner) Plan(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(ch)
		r, err := p.Route(ctx, req)
		ch <- Result{Request: req, Route: r, Err: err}
	}()
	return ch
}

// Wait blocks until every background request has delivered its result.
func (p *Planner) Wait() {
	p.wg.Wait()
}

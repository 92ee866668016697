package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/vovakirdan/railsim/internal/core"
)

var (
	// ErrAlreadyBound is returned when binding a segment endpoint that is
	// already attached to an intersection.
	ErrAlreadyBound = errors.New("registry: endpoint already bound")

	// ErrNotBound is returned when unbinding an endpoint that is not attached.
	ErrNotBound = errors.New("registry: endpoint not bound")
)

// Registry is the bookkeeping of intersections and the segment endpoints
// bound to them. It keeps the forward (intersection to bindings) and reverse
// (binding to intersection) maps consistent. It performs no geometry checks
// and is not safe for concurrent use; the Network guards it.
type Registry struct {
	nextID  IntersectionID
	entries map[IntersectionID]*registryEntry
	reverse map[Binding]IntersectionID
}

type registryEntry struct {
	Intersection
	bindings []Binding // insertion order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[IntersectionID]*registryEntry),
		reverse: make(map[Binding]IntersectionID),
	}
}

// Create adds an intersection with no bindings and returns its ID.
// The caller is expected to bind at least one endpoint before committing.
func (r *Registry) Create(pos, rightForward core.Vec2) IntersectionID {
	r.nextID++
	id := r.nextID
	r.entries[id] = &registryEntry{
		Intersection: Intersection{ID: id, Pos: pos, RightForward: rightForward.Normalize()},
	}
	return id
}

// Get returns the intersection with the given ID.
func (r *Registry) Get(id IntersectionID) (Intersection, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Intersection{}, false
	}
	return e.Intersection, true
}

// Has reports whether the intersection exists.
func (r *Registry) Has(id IntersectionID) bool {
	_, ok := r.entries[id]
	return ok
}

// Bind attaches a segment endpoint to an intersection.
func (r *Registry) Bind(b Binding, id IntersectionID) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAnchor, id)
	}
	if cur, bound := r.reverse[b]; bound {
		return fmt.Errorf("%w: %s at %s", ErrAlreadyBound, b, cur)
	}
	e.bindings = append(e.bindings, b)
	r.reverse[b] = id
	return nil
}

// Unbind detaches a segment endpoint. When the intersection's degree drops to
// zero it is removed and removed is true.
func (r *Registry) Unbind(b Binding) (id IntersectionID, removed bool, err error) {
	id, ok := r.reverse[b]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", ErrNotBound, b)
	}
	delete(r.reverse, b)

	e := r.entries[id]
	for i, x := range e.bindings {
		if x == b {
			e.bindings = append(e.bindings[:i:i], e.bindings[i+1:]...)
			break
		}
	}
	if len(e.bindings) == 0 {
		delete(r.entries, id)
		return id, true, nil
	}
	return id, false, nil
}

// Rebind moves the intersection slot held by from over to the endpoint to,
// keeping its position in the binding order. The intersection never passes
// through degree zero.
func (r *Registry) Rebind(from, to Binding) error {
	id, ok := r.reverse[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, from)
	}
	if cur, bound := r.reverse[to]; bound {
		return fmt.Errorf("%w: %s at %s", ErrAlreadyBound, to, cur)
	}
	e := r.entries[id]
	for i, x := range e.bindings {
		if x == from {
			e.bindings[i] = to
			break
		}
	}
	delete(r.reverse, from)
	r.reverse[to] = id
	return nil
}

// Lookup returns the intersection an endpoint is bound to.
func (r *Registry) Lookup(b Binding) (IntersectionID, bool) {
	id, ok := r.reverse[b]
	return id, ok
}

// Bindings returns a copy of the endpoints bound to an intersection, in the
// order they were bound.
func (r *Registry) Bindings(id IntersectionID) []Binding {
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	out := make([]Binding, len(e.bindings))
	copy(out, e.bindings)
	return out
}

// Siblings returns the other endpoints sharing the intersection of b.
func (r *Registry) Siblings(b Binding) []Binding {
	id, ok := r.reverse[b]
	if !ok {
		return nil
	}
	var out []Binding
	for _, x := range r.entries[id].bindings {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

// DegreeOf returns the number of bindings of an intersection, or zero if it
// does not exist.
func (r *Registry) DegreeOf(id IntersectionID) int {
	e, ok := r.entries[id]
	if !ok {
		return 0
	}
	return len(e.bindings)
}

// Nearest returns the closest intersection within tol of pos. Ties go to the
// lowest ID.
func (r *Registry) Nearest(pos core.Vec2, tol float64) (IntersectionID, bool) {
	var best IntersectionID
	bestD := math.Inf(1)
	for _, id := range r.IDs() {
		d := r.entries[id].Pos.Dist(pos)
		if d <= tol && d < bestD {
			best, bestD = id, d
		}
	}
	return best, best != 0
}

// IDs returns all intersection IDs in ascending order.
func (r *Registry) IDs() []IntersectionID {
	ids := make([]IntersectionID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of intersections.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Clone returns a deep copy that can be mutated independently.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		nextID:  r.nextID,
		entries: make(map[IntersectionID]*registryEntry, len(r.entries)),
		reverse: make(map[Binding]IntersectionID, len(r.reverse)),
	}
	for id, e := range r.entries {
		bs := make([]Binding, len(e.bindings))
		copy(bs, e.bindings)
		c.entries[id] = &registryEntry{Intersection: e.Intersection, bindings: bs}
	}
	for b, id := range r.reverse {
		c.reverse[b] = id
	}
	return c
}

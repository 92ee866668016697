package sim

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// ErrUnknownStation is returned for a station name that is not placed.
var ErrUnknownStation = errors.New("sim: unknown station")

// StationInfo is a placed station and the trains that stop there.
type StationInfo struct {
	Name         string
	Intersection network.IntersectionID
	Trains       []traffic.TrainID
}

// Station returns the intersection a station stands on. A station whose
// intersection was removed is gone.
func (w *World) Station(name string) (network.IntersectionID, bool) {
	id, ok := w.stations[name]
	if !ok {
		return 0, false
	}
	_, ok = w.net.Intersection(id)
	return id, ok
}

// AddStation names an intersection as a stop.
func (w *World) AddStation(name string, at network.IntersectionID) error {
	if _, ok := w.Station(name); ok {
		return fmt.Errorf("sim: station %s already placed", name)
	}
	if _, ok := w.net.Intersection(at); !ok {
		return fmt.Errorf("%w: %s", network.ErrUnknownAnchor, at)
	}
	w.stations[name] = at
	w.log.Info("station placed", "station", name, "intersection", at)
	return nil
}

// Stations lists the placed stations by name.
func (w *World) Stations() []StationInfo {
	names := make([]string, 0, len(w.stations))
	for name := range w.stations {
		if _, ok := w.Station(name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]StationInfo, 0, len(names))
	for _, name := range names {
		id := w.stations[name]
		out = append(out, StationInfo{Name: name, Intersection: id, Trains: w.servedAt(id)})
	}
	return out
}

// servedAt lists trains heading to the intersection or patrolling through
// it, in placement order.
func (w *World) servedAt(id network.IntersectionID) []traffic.TrainID {
	var out []traffic.TrainID
	for _, v := range w.fleet {
		if v.trip.dest == id || slices.Contains(w.patrol.Stops(v.ID), id) {
			out = append(out, v.ID)
		}
	}
	return out
}

// SetPatrolStations makes a train cycle through named stations.
func (w *World) SetPatrolStations(id traffic.TrainID, names ...string) error {
	stops := make([]network.IntersectionID, 0, len(names))
	for _, name := range names {
		at, ok := w.Station(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStation, name)
		}
		stops = append(stops, at)
	}
	return w.SetPatrol(id, stops...)
}

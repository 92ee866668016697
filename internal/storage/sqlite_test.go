package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vovakirdan/railsim/internal/sim"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	// Check that the file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreNestedPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "deep", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() with nested path failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)

	run, err := store.StartRun("shuttle")
	if err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}
	if len(run.ID()) != 36 {
		t.Errorf("run id %q is not a UUID", run.ID())
	}

	entry, err := store.RunByID(run.ID())
	if err != nil {
		t.Fatalf("RunByID() failed: %v", err)
	}
	if entry == nil || entry.ScenarioID != "shuttle" || entry.Ticks != 0 || !entry.FinishedAt.IsZero() {
		t.Fatalf("unfinished run = %+v", entry)
	}

	if err := run.Finish(420); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}
	entry, _ = store.RunByID(run.ID())
	if entry.Ticks != 420 || entry.FinishedAt.IsZero() {
		t.Errorf("finished run = %+v", entry)
	}

	missing, err := store.RunByID("nope")
	if err != nil || missing != nil {
		t.Errorf("RunByID(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestRecordTrips(t *testing.T) {
	store := openStore(t)

	first, _ := store.StartRun("shuttle")
	second, _ := store.StartRun("loop")

	for i, r := range []*Run{first, first, second} {
		err := r.RecordTrip(sim.Trip{
			Train:       "T1",
			Origin:      1,
			Destination: 3,
			Legs:        i + 1,
			Distance:    float64(10 * (i + 1)),
			Ticks:       uint64(100 * (i + 1)),
		})
		if err != nil {
			t.Fatalf("RecordTrip() failed: %v", err)
		}
	}

	trips, err := store.TripsForRun(first.ID())
	if err != nil {
		t.Fatalf("TripsForRun() failed: %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("Expected 2 trips, got %d", len(trips))
	}
	if trips[0].Legs != 1 || trips[1].Legs != 2 {
		t.Errorf("trips not in completion order: %+v", trips)
	}
	if trips[0].TrainID != "T1" || trips[0].Destination != 3 || trips[0].Ticks != 100 || trips[0].ScenarioID != "shuttle" {
		t.Errorf("trip = %+v", trips[0])
	}

	recent, err := store.RecentTrips("", 2)
	if err != nil {
		t.Fatalf("RecentTrips() failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ScenarioID != "loop" {
		t.Errorf("RecentTrips(all) = %+v, want newest first", recent)
	}

	shuttle, _ := store.RecentTrips("shuttle", 10)
	if len(shuttle) != 2 {
		t.Errorf("Expected 2 shuttle trips, got %d", len(shuttle))
	}
}

func TestJournal(t *testing.T) {
	store := openStore(t)
	run, _ := store.StartRun("junction")

	records := []sim.MutationRecord{
		{Version: 1, Op: "add_segment", Detail: "(0, 0) -> (100, 0)"},
		{Version: 1, Op: "add_segment", Detail: "(100, 0) -> (0, 2)", ErrorKind: "too_shallow"},
		{Version: 2, Op: "expand_from", Detail: "S1 near (50, 0)"},
	}
	for _, m := range records {
		if err := run.RecordMutation(m); err != nil {
			t.Fatalf("RecordMutation() failed: %v", err)
		}
	}

	journal, err := store.Journal(run.ID())
	if err != nil {
		t.Fatalf("Journal() failed: %v", err)
	}
	if len(journal) != len(records) {
		t.Fatalf("Expected %d entries, got %d", len(records), len(journal))
	}
	for i, e := range journal {
		want := records[i]
		if e.Version != want.Version || e.Op != want.Op || e.Detail != want.Detail || e.ErrorKind != want.ErrorKind {
			t.Errorf("entry %d = %+v, want %+v", i, e, want)
		}
	}
}

func TestScenarioStats(t *testing.T) {
	store := openStore(t)

	for i := 0; i < 2; i++ {
		run, _ := store.StartRun("diamond")
		run.RecordTrip(sim.Trip{Train: "T1", Distance: 100, Ticks: 200})
		run.RecordMutation(sim.MutationRecord{Version: 1, Op: "remove_segment", ErrorKind: "train_on_segment"})
		run.Finish(300)
	}
	other, _ := store.StartRun("loop")
	other.RecordTrip(sim.Trip{Train: "T2", Distance: 1, Ticks: 1})

	stats, err := store.ScenarioStats("diamond")
	if err != nil {
		t.Fatalf("ScenarioStats() failed: %v", err)
	}
	if stats.Runs != 2 || stats.Trips != 2 || stats.AvgDistance != 100 || stats.AvgTicks != 200 || stats.Rejected != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastRun.IsZero() {
		t.Error("LastRun not set")
	}

	empty, err := store.ScenarioStats("never")
	if err != nil {
		t.Fatalf("ScenarioStats(never) failed: %v", err)
	}
	if empty.Runs != 0 || empty.Trips != 0 || !empty.LastRun.IsZero() {
		t.Errorf("empty stats = %+v", empty)
	}

	all, err := store.AllScenarioStats()
	if err != nil {
		t.Fatalf("AllScenarioStats() failed: %v", err)
	}
	if len(all) != 2 || all["loop"].Trips != 1 {
		t.Errorf("AllScenarioStats() = %v", all)
	}
}

func TestRecentRunsLimit(t *testing.T) {
	store := openStore(t)
	for i := 0; i < 5; i++ {
		store.StartRun("shuttle")
	}

	runs, err := store.RecentRuns(3)
	if err != nil {
		t.Fatalf("RecentRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("Expected 3 runs with limit, got %d", len(runs))
	}
}

package towers

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/askneller/WizardBattles/internal/sim/mathx"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/grid"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/placer"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/stitch"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
)

type hill struct{}

func (hill) HeightAt(x, z int) float32 {
	ring := mathx.Chebyshev(x-8, z-8)
	if ring <= 2 {
		return 100
	}
	return float32(100 - 5*(ring-2))
}
func (hill) BiomeAt(x, z int) gen.Biome { return gen.Mountains }

// fakePlacer fails with ErrNotLoaded until loaded is set.
type fakePlacer struct {
	mu     sync.Mutex
	loaded bool
	err    error
	calls  []registry.Pos
}

func (f *fakePlacer) Place(s registry.Site, id string) (placer.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s.Pos)
	if f.err != nil {
		return placer.Placement{}, f.err
	}
	if !f.loaded {
		return placer.Placement{}, placer.ErrNotLoaded
	}
	return placer.Placement{
		Template: id,
		Rotation: 2,
		Spawns:   []placer.Spawn{{Prefab: "wizard", Pos: [3]int{s.Pos.X, s.Pos.Y + 18, s.Pos.Z}}},
	}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) WriteSiteEvent(e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newSession(pl Placer, cfg Config) *Session {
	st := stitch.New(8, 8, grid.DefaultTolerance, scan.New(scan.DefaultConfig()))
	if cfg.Template == "" {
		cfg.Template = "wizard_tower"
	}
	return New(cfg, st, pl, quietLogger())
}

func generateHill(t *testing.T, s *Session) {
	t.Helper()
	p := worldgen.NewPipeline(hill{}, 2)
	s.Attach(p)
	if err := p.Generate(context.Background(), worldgen.Around(0, 0, 8, 8, 1)); err != nil {
		t.Fatalf("generate: %v", err)
	}
}

func TestDrainReclaimsThenBuilds(t *testing.T) {
	fp := &fakePlacer{}
	s := newSession(fp, Config{})
	rec := &recorder{}
	s.SetEventSink(rec)
	generateHill(t, s)

	res := s.Drain()
	if res.Built != 0 || res.Reclaimed == 0 {
		t.Fatalf("first drain = %+v", res)
	}
	peak := registry.Pos{X: 8, Y: 100, Z: 8}
	if s.Registry().State(peak) != registry.Pending {
		t.Fatalf("peak state = %s", s.Registry().State(peak))
	}

	fp.mu.Lock()
	fp.loaded = true
	fp.mu.Unlock()
	res = s.Drain()
	if res.Built != 1 {
		t.Fatalf("second drain = %+v", res)
	}
	if s.Registry().State(peak) != registry.Built {
		t.Fatalf("peak state = %s", s.Registry().State(peak))
	}
	if s.Registry().Attempts(peak) != 2 {
		t.Fatalf("attempts = %d", s.Registry().Attempts(peak))
	}

	towers := s.Towers()
	if len(towers) != 1 || towers[0].Site.Pos != peak || towers[0].Rotation != 2 {
		t.Fatalf("towers = %+v", towers)
	}

	var built *Event
	rec.mu.Lock()
	for i := range rec.events {
		if rec.events[i].Kind == KindBuilt {
			built = &rec.events[i]
		}
		if i > 0 && rec.events[i].Seq <= rec.events[i-1].Seq {
			rec.mu.Unlock()
			t.Fatalf("event seq not increasing at %d", i)
		}
	}
	rec.mu.Unlock()
	if built == nil || built.Template != "wizard_tower" || len(built.Spawns) != 1 {
		t.Fatalf("built event = %+v", built)
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != KindSpawn {
		t.Fatalf("last event = %s", kinds[len(kinds)-1])
	}

	// Built sites never come back.
	s.Submit(scan.Candidate{WorldX: 8, WorldZ: 8, Height: 100, BiomeMatch: true})
	if res := s.Drain(); res.Built != 0 {
		t.Fatalf("rebuilt a built site: %+v", res)
	}
	if m := s.Metrics(); m.Duplicates == 0 || m.Built != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestDrainTriesEverySiteOnce(t *testing.T) {
	fp := &fakePlacer{}
	s := newSession(fp, Config{PlacementsPerDrain: 1})
	for i := 0; i < 3; i++ {
		s.Submit(scan.Candidate{WorldX: i, Height: 100 + i, BiomeMatch: true})
	}
	res := s.Drain()
	if res.Reclaimed != 3 || len(fp.calls) != 3 {
		t.Fatalf("drain = %+v calls=%v", res, fp.calls)
	}
	if fp.calls[0].Y != 102 || fp.calls[2].Y != 100 {
		t.Fatalf("not highest first: %v", fp.calls)
	}
	if c := s.Registry().Counts(); c.Pending != 3 || c.Checking != 0 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestDrainRejectsOnOtherErrors(t *testing.T) {
	fp := &fakePlacer{err: placer.ErrBiomeMismatch}
	s := newSession(fp, Config{})
	rec := &recorder{}
	s.SetEventSink(rec)
	s.Submit(scan.Candidate{WorldX: 1, WorldZ: 1, Height: 90})
	if res := s.Drain(); res.Rejected != 1 {
		t.Fatalf("drain = %+v", res)
	}
	if s.Registry().State(registry.Pos{X: 1, Y: 90, Z: 1}) != registry.Rejected {
		t.Fatalf("site not rejected")
	}
	got := rec.kinds()
	want := []EventKind{KindAdded, KindChecking, KindRejected}
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v", got)
		}
	}
}

func TestInboxOverflowGoesToRegistry(t *testing.T) {
	s := newSession(&fakePlacer{}, Config{InboxSize: 1})
	for i := 0; i < 4; i++ {
		s.Submit(scan.Candidate{WorldX: i, Height: 80})
	}
	if m := s.Metrics(); m.InboxOverflow != 3 || m.Registry.Pending != 3 {
		t.Fatalf("metrics = %+v", m)
	}
	s.pumpInbox()
	if c := s.Registry().Counts(); c.Pending != 4 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestRunDrainsOnInterval(t *testing.T) {
	fp := &fakePlacer{loaded: true}
	s := newSession(fp, Config{DrainInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Submit(scan.Candidate{WorldX: 3, WorldZ: 3, Height: 120, BiomeMatch: true})
	deadline := time.Now().Add(2 * time.Second)
	for s.Registry().Counts().Built == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("site never built")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
}

func TestExportRestore(t *testing.T) {
	fp := &fakePlacer{loaded: true}
	s := newSession(fp, Config{PlacementsPerDrain: 1})
	s.Submit(scan.Candidate{WorldX: 1, Height: 130, BiomeMatch: true})
	s.Submit(scan.Candidate{WorldX: 2, Height: 110, BiomeMatch: true})
	s.Drain()
	st := s.Export()
	if len(st.Towers) != 1 || len(st.Pending) != 1 {
		t.Fatalf("export = %+v", st)
	}

	resumed := newSession(fp, Config{})
	resumed.Restore(st)
	if resumed.Registry().State(registry.Pos{X: 1, Y: 130}) != registry.Built {
		t.Fatalf("built tower not restored")
	}
	if resumed.Registry().State(registry.Pos{X: 2, Y: 110}) != registry.Pending {
		t.Fatalf("pending site not restored")
	}
	if resumed.Registry().Attempts(registry.Pos{X: 1, Y: 130}) != 1 {
		t.Fatalf("attempts not restored")
	}
	resumed.Submit(scan.Candidate{WorldX: 1, Height: 130, BiomeMatch: true})
	resumed.pumpInbox()
	if resumed.Registry().Counts().Pending != 1 {
		t.Fatalf("built site re-queued after restore")
	}
}

func TestExportKeepsCheckingSites(t *testing.T) {
	s := newSession(&fakePlacer{loaded: true}, Config{})
	s.Submit(scan.Candidate{WorldX: 1, Height: 130, BiomeMatch: true})
	s.Submit(scan.Candidate{WorldX: 2, Height: 110, BiomeMatch: true})
	s.pumpInbox()
	if _, ok := s.Registry().TakeNext(); !ok {
		t.Fatalf("nothing to check")
	}
	st := s.Export()
	if len(st.Pending) != 2 || st.Pending[0].Pos != (registry.Pos{X: 1, Y: 130}) || st.Pending[1].Pos != (registry.Pos{X: 2, Y: 110}) {
		t.Fatalf("pending = %+v", st.Pending)
	}
	if st.Attempts[registry.Pos{X: 1, Y: 130}] != 1 {
		t.Fatalf("attempts = %v", st.Attempts)
	}
}

func TestSinksJoinErrors(t *testing.T) {
	bad := sinkFunc(func(Event) error { return errors.New("boom") })
	rec := &recorder{}
	if err := (Sinks{bad, nil, rec}).WriteSiteEvent(Event{Kind: KindAdded}); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(rec.kinds()) != 1 {
		t.Fatalf("later sinks must still receive the event")
	}
}

type sinkFunc func(Event) error

func (f sinkFunc) WriteSiteEvent(e Event) error { return f(e) }

package log

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/towers"
)

func TestSiteLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewSiteLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC) }

	site := registry.Site{Pos: registry.Pos{X: 4, Y: 130, Z: -9}, Flatness: 2, BiomeMatch: true}
	for i, k := range []towers.EventKind{towers.KindAdded, towers.KindChecking, towers.KindBuilt} {
		if err := l.WriteSiteEvent(towers.Event{Seq: uint64(i + 1), Kind: k, Site: site, Template: "wizard_tower"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	path := l.w.CurrentPath()
	if want := filepath.Join(dir, "events", "sites-2026-03-01-14.jsonl.zst"); path != want {
		t.Fatalf("path = %s want %s", path, want)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadSiteEvents(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[2].Kind != towers.KindBuilt || got[2].Site.Pos != site.Pos {
		t.Fatalf("events = %+v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2026, 3, 1, 14, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := w.CurrentPath()
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if w.CurrentPath() == first {
		t.Fatalf("writer did not rotate")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "x-*.jsonl.zst"))
	if len(matches) != 2 {
		t.Fatalf("files = %v", matches)
	}
}

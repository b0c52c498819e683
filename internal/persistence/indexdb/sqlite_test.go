package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/askneller/WizardBattles/internal/persistence/snapshot"
	"github.com/askneller/WizardBattles/internal/sim/catalogs"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/placer"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/towers"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
)

func site(x, y, z int) registry.Site {
	return registry.Site{Pos: registry.Pos{X: x, Y: y, Z: z}, Flatness: 3, RawHeight: float32(y) + 0.4, PeakLike: true, BiomeMatch: true}
}

func TestSQLiteIndex_SiteLifecycle(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "world.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	now := time.Unix(1700000000, 0)
	a := site(10, 120, 20)
	b := site(30, 90, 40)
	c := site(50, 80, 60)
	events := []towers.Event{
		{Seq: 1, Kind: towers.KindAdded, Time: now, Site: a},
		{Seq: 2, Kind: towers.KindAdded, Time: now, Site: b},
		{Seq: 3, Kind: towers.KindAdded, Time: now, Site: c},
		{Seq: 4, Kind: towers.KindChecking, Time: now, Site: a, Attempt: 1},
		{Seq: 5, Kind: towers.KindBuilt, Time: now, Site: a, Template: "wizard_tower", Rotation: 90, Attempt: 1},
		{Seq: 6, Kind: towers.KindSpawn, Time: now, Site: a, Template: "wizard_tower", Spawns: []placer.Spawn{
			{Prefab: "wizard", Pos: [3]int{10, 138, 20}},
			{Prefab: "skeleton", Pos: [3]int{11, 121, 21}},
		}},
		{Seq: 7, Kind: towers.KindChecking, Time: now, Site: b, Attempt: 1},
		{Seq: 8, Kind: towers.KindReclaimed, Time: now, Site: b, Attempt: 1, Detail: "not loaded"},
		{Seq: 9, Kind: towers.KindRejected, Time: now, Site: c, Detail: "biome mismatch"},
	}
	for _, e := range events {
		if err := idx.WriteSiteEvent(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	idx.RecordSnapshot("snapshots/1.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{SavedAt: now.Unix()}, Seed: 7})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	all, err := idx.Sites(ctx, "", 0)
	if err != nil {
		t.Fatalf("sites: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("sites: got %d want 3", len(all))
	}
	if all[0].X != 10 || all[0].State != "built" || all[0].Template != "wizard_tower" || all[0].Rotation != 90 {
		t.Fatalf("first site: %+v", all[0])
	}
	if all[1].State != "pending" || all[1].Attempts != 1 {
		t.Fatalf("reclaimed site: %+v", all[1])
	}
	if all[2].State != "rejected" {
		t.Fatalf("rejected site: %+v", all[2])
	}

	built, err := idx.Sites(ctx, "built", 10)
	if err != nil || len(built) != 1 {
		t.Fatalf("built: %v %v", built, err)
	}

	spawns, err := idx.Spawns(ctx, 0)
	if err != nil {
		t.Fatalf("spawns: %v", err)
	}
	if len(spawns) != 2 || spawns[0].Prefab != "wizard" || spawns[0].Site != [3]int{10, 120, 20} {
		t.Fatalf("spawns: %+v", spawns)
	}

	if n, err := idx.EventCount(ctx, ""); err != nil || n != len(events) {
		t.Fatalf("events: %d %v", n, err)
	}
	if n, err := idx.EventCount(ctx, string(towers.KindAdded)); err != nil || n != 3 {
		t.Fatalf("added events: %d %v", n, err)
	}
	if n, err := idx.SnapshotCount(ctx); err != nil || n != 1 {
		t.Fatalf("snapshots: %d %v", n, err)
	}
	if st := idx.Stats(); st.EventsApplied != uint64(len(events)) || st.WriteErrorTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	cfgDir := filepath.Join("..", "..", "..", "configs")
	cats, err := catalogs.Load(cfgDir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	if err := idx.UpsertCatalogs(cfgDir, cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ctx := context.Background()
	for name, want := range map[string]string{
		"blocks_defs":    cats.Blocks.DefsDigest,
		"blocks_palette": cats.Blocks.PaletteDigest,
		"structures":     cats.Structures.Digest,
	} {
		got, err := idx.CatalogDigest(ctx, name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s digest: got %s want %s", name, got, want)
		}
	}
	if d, err := idx.CatalogDigest(ctx, "tuning"); err != nil || d == "" {
		t.Fatalf("tuning digest: %q %v", d, err)
	}
}

func TestSQLiteIndex_CloseIsIdempotent(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := idx.WriteSiteEvent(towers.Event{Seq: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Flush(context.Background()); err != ErrClosed {
		t.Fatalf("flush after close: %v", err)
	}
}

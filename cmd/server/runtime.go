package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/askneller/WizardBattles/internal/observerproto"
	persistlog "github.com/askneller/WizardBattles/internal/persistence/log"
	"github.com/askneller/WizardBattles/internal/persistence/snapshot"
	"github.com/askneller/WizardBattles/internal/sim/catalogs"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/placer"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/stitch"
	"github.com/askneller/WizardBattles/internal/sim/towers"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/store"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
	"github.com/askneller/WizardBattles/internal/transport/observer"
)

type runtimeConfig struct {
	WorldID   string
	Seed      int64
	ConfigDir string
	DataDir   string
	DisableDB bool

	OriginX int
	OriginZ int

	// SnapshotPath resumes from a specific snapshot. When empty and
	// LoadLatest is set, the newest snapshot in the world dir is used.
	SnapshotPath string
	LoadLatest   bool
}

// worldRuntime owns one world: terrain, chunks, the tower session and every
// sink its events flow into.
type worldRuntime struct {
	cfg      runtimeConfig
	tune     tuning.Tuning
	cats     *catalogs.Catalogs
	worldDir string
	log      *log.Logger

	seed     int64
	terrain  *gen.Terrain
	chunks   *store.ChunkStore
	session  *towers.Session
	pipeline *worldgen.Pipeline

	idx     runtimeIndex
	siteLog *persistlog.SiteLogger
	hub     *observer.Server

	snapMu   sync.Mutex
	lastSnap string
}

func newWorldRuntime(cfg runtimeConfig, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (*worldRuntime, error) {
	if logger == nil {
		logger = log.Default()
	}
	if _, ok := cats.Structures.ByID[tune.Placement.Template]; !ok {
		return nil, fmt.Errorf("placement template %q not in catalogs", tune.Placement.Template)
	}
	scanCfg, err := tune.ScanConfig()
	if err != nil {
		return nil, err
	}

	rt := &worldRuntime{
		cfg:      cfg,
		tune:     tune,
		cats:     cats,
		worldDir: filepath.Join(cfg.DataDir, "worlds", cfg.WorldID),
		log:      logger,
		seed:     cfg.Seed,
	}
	if err := os.MkdirAll(rt.worldDir, 0o755); err != nil {
		return nil, err
	}

	snapPath := strings.TrimSpace(cfg.SnapshotPath)
	if snapPath == "" && cfg.LoadLatest {
		snapPath = latestSnapshot(rt.worldDir)
	}
	var snap *snapshot.SnapshotV1
	if snapPath != "" {
		s, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != cfg.WorldID {
			return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", cfg.WorldID, s.Header.WorldID)
		}
		if s.RegionSize != 0 && s.RegionSize != tune.World.RegionSize {
			return nil, fmt.Errorf("snapshot region size %d differs from tuning %d", s.RegionSize, tune.World.RegionSize)
		}
		rt.seed = s.Seed
		snap = &s
	}

	rt.terrain = gen.NewTerrain(tune.TerrainParams(rt.seed))
	wg := worldGen(cats, tune, rt.seed)
	if snap != nil {
		if snap.Height != 0 {
			wg.Height = snap.Height
		}
		rt.chunks, err = store.ImportChunks(wg, rt.terrain, snap.Chunks)
		if err != nil {
			return nil, fmt.Errorf("import chunks: %w", err)
		}
	} else {
		rt.chunks = store.NewChunkStore(wg, rt.terrain)
	}
	origin := store.ChunkOf(cfg.OriginX, cfg.OriginZ)
	rt.chunks.LoadRadius(origin.CX, origin.CZ, tune.World.ChunkRadius)

	sc := scan.New(scanCfg)
	st := stitch.New(tune.World.RegionSize, tune.World.RegionSize, tune.Sites.LevelTolerance, sc)
	pl := placer.New(rt.chunks, cats, placer.Config{
		Seed:       rt.seed,
		BaseRadius: tune.Placement.BaseRadius,
		BaseDepth:  tune.Placement.BaseDepth,
	})
	rt.session = towers.New(towers.Config{
		Template:           tune.Placement.Template,
		DrainInterval:      time.Duration(tune.Placement.DrainIntervalMs) * time.Millisecond,
		PlacementsPerDrain: tune.Placement.PerDrain,
		InboxSize:          tune.Placement.InboxSize,
	}, st, pl, logger)
	if snap != nil {
		rt.session.Restore(stateFromSnapshot(*snap))
		rt.lastSnap = snapPath
		logger.Printf("resumed from snapshot=%s towers=%d pending=%d", filepath.Base(snapPath), len(snap.Towers), len(snap.Pending))
	}

	rt.pipeline = worldgen.NewPipeline(rt.terrain, tune.World.Workers)
	rt.session.Attach(rt.pipeline)

	// Optional read-model index; the event log stays the source of truth.
	rt.idx, err = openRuntimeIndex(rt.worldDir, cfg.DisableDB)
	if err != nil {
		return nil, fmt.Errorf("open index backend: %w", err)
	}
	if rt.idx != nil {
		if err := rt.idx.UpsertCatalogs(cfg.ConfigDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}
	rt.siteLog = persistlog.NewSiteLogger(rt.worldDir)
	rt.hub = observer.NewServer(rt.bootstrap, logger)

	sinks := towers.Sinks{rt.siteLog, rt.hub}
	if rt.idx != nil {
		sinks = append(sinks, rt.idx)
	}
	rt.session.SetEventSink(sinks)
	return rt, nil
}

func worldGen(cats *catalogs.Catalogs, tune tuning.Tuning, seed int64) store.WorldGen {
	b := cats.Blocks.Index
	return store.WorldGen{
		Seed:               seed,
		Height:             tune.World.Height,
		OreClusterPermille: tune.World.OrePermille,
		Air:                b["AIR"],
		Stone:              b["STONE"],
		Dirt:               b["DIRT"],
		Grass:              b["GRASS"],
		Sand:               b["SAND"],
		Snow:               b["SNOW"],
		Water:              b["WATER"],
		CoalOre:            b["COAL_ORE"],
	}
}

// regions lists the generation regions around the origin, nearest first.
func (rt *worldRuntime) regions() []worldgen.Region {
	rs := rt.tune.World.RegionSize
	return worldgen.Around(rt.cfg.OriginX, rt.cfg.OriginZ, rs, rs, rt.tune.World.RegionRadius)
}

func (rt *worldRuntime) generate(ctx context.Context) error {
	start := time.Now()
	regions := rt.regions()
	if err := rt.pipeline.Generate(ctx, regions); err != nil {
		return err
	}
	m := rt.session.Metrics()
	rt.log.Printf("generated regions=%d candidates=%d pending=%d in %s",
		len(regions), m.Candidates, m.Registry.Pending, time.Since(start).Round(time.Millisecond))
	return nil
}

func (rt *worldRuntime) Close() {
	if rt.siteLog != nil {
		if err := rt.siteLog.Close(); err != nil {
			rt.log.Printf("site log close: %v", err)
		}
	}
	if rt.idx != nil {
		_ = rt.idx.Close()
	}
}

func (rt *worldRuntime) bootstrap() observerproto.BootstrapResponse {
	counts := rt.session.Registry().Counts()
	resp := observerproto.BootstrapResponse{
		WorldID: rt.cfg.WorldID,
		WorldParams: observerproto.WorldParams{
			ChunkSize:  [3]int{store.ChunkSize, store.ChunkSize, rt.chunks.Gen.Height},
			Height:     rt.chunks.Gen.Height,
			Seed:       rt.seed,
			SeaLevel:   rt.terrain.SeaLevel(),
			RegionSize: rt.tune.World.RegionSize,
			Template:   rt.session.Template(),
		},
		BlockPalette: rt.cats.Blocks.Palette,
		Counts: observerproto.SiteCounts{
			Pending:  counts.Pending,
			Checking: counts.Checking,
			Built:    counts.Built,
			Rejected: counts.Rejected,
		},
		Towers: []observerproto.TowerInfo{},
	}
	for _, t := range rt.session.Towers() {
		p := t.Site.Pos
		resp.Towers = append(resp.Towers, observerproto.TowerInfo{Pos: [3]int{p.X, p.Y, p.Z}, Template: t.Template, Rotation: t.Rotation})
	}
	return resp
}

// exportSnapshot captures chunks, towers and the site queue.
func (rt *worldRuntime) exportSnapshot(now time.Time) snapshot.SnapshotV1 {
	st := rt.session.Export()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: rt.cfg.WorldID,
			SavedAt: now.Unix(),
		},
		Seed:       rt.seed,
		Height:     rt.chunks.Gen.Height,
		RegionSize: rt.tune.World.RegionSize,
		Template:   rt.session.Template(),
		Chunks:     rt.chunks.ExportLoadedChunks(),
	}
	for _, t := range st.Towers {
		p := t.Site.Pos
		snap.Towers = append(snap.Towers, snapshot.TowerV1{
			Pos:      [3]int{p.X, p.Y, p.Z},
			Template: t.Template,
			Rotation: t.Rotation,
			Attempts: st.Attempts[p],
		})
	}
	for _, s := range st.Pending {
		snap.Pending = append(snap.Pending, snapshot.SiteV1{
			Pos:        [3]int{s.Pos.X, s.Pos.Y, s.Pos.Z},
			Flatness:   s.Flatness,
			RawHeight:  s.RawHeight,
			PeakLike:   s.PeakLike,
			BiomeMatch: s.BiomeMatch,
			Attempts:   st.Attempts[s.Pos],
		})
	}
	for _, s := range st.Rejected {
		snap.Rejected = append(snap.Rejected, [3]int{s.Pos.X, s.Pos.Y, s.Pos.Z})
	}
	return snap
}

func stateFromSnapshot(snap snapshot.SnapshotV1) towers.State {
	pos := func(p [3]int) registry.Pos { return registry.Pos{X: p[0], Y: p[1], Z: p[2]} }
	st := towers.State{Attempts: map[registry.Pos]int{}}
	for _, t := range snap.Towers {
		site := registry.Site{Pos: pos(t.Pos), BiomeMatch: true}
		st.Towers = append(st.Towers, towers.Tower{Site: site, Template: t.Template, Rotation: t.Rotation})
		if t.Attempts > 0 {
			st.Attempts[site.Pos] = t.Attempts
		}
	}
	for _, s := range snap.Pending {
		site := registry.Site{
			Pos:        pos(s.Pos),
			Flatness:   s.Flatness,
			RawHeight:  s.RawHeight,
			PeakLike:   s.PeakLike,
			BiomeMatch: s.BiomeMatch,
		}
		st.Pending = append(st.Pending, site)
		if s.Attempts > 0 {
			st.Attempts[site.Pos] = s.Attempts
		}
	}
	for _, p := range snap.Rejected {
		st.Rejected = append(st.Rejected, registry.Site{Pos: pos(p)})
	}
	return st
}

// saveSnapshot writes a snapshot named by its save time in milliseconds.
func (rt *worldRuntime) saveSnapshot(now time.Time) (string, error) {
	rt.snapMu.Lock()
	defer rt.snapMu.Unlock()

	snap := rt.exportSnapshot(now)
	path := filepath.Join(rt.worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", now.UnixMilli()))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	rt.lastSnap = path
	if rt.idx != nil {
		rt.idx.RecordSnapshot(path, snap)
	}
	return path, nil
}

func (rt *worldRuntime) snapshotLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			path, err := rt.saveSnapshot(now)
			if err != nil {
				rt.log.Printf("snapshot write: %v", err)
				continue
			}
			rt.log.Printf("snapshot saved %s", filepath.Base(path))
		}
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestAt int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		at, err := strconv.ParseInt(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || at > bestAt {
			bestAt = at
			best = filepath.Join(dir, name)
		}
	}
	return best
}

package main

import (
	"context"
	"sync"
	"time"

	"github.com/askneller/WizardBattles/internal/observerproto"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/stitch"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
)

// scanOffline runs the site scan locally around (x,z) and reports every
// candidate as a SITE_ADDED event, so the viewer works without a server.
func scanOffline(ctx context.Context, tune tuning.Tuning, src worldgen.Source, x, z int) ([]observerproto.SiteEventMsg, error) {
	cfg, err := tune.ScanConfig()
	if err != nil {
		return nil, err
	}
	rs := tune.World.RegionSize
	st := stitch.New(rs, rs, tune.Sites.LevelTolerance, scan.New(cfg))

	var (
		mu    sync.Mutex
		found []scan.Candidate
	)
	collect := func(c []scan.Candidate, err error) {
		if err != nil || len(c) == 0 {
			return
		}
		mu.Lock()
		found = append(found, c...)
		mu.Unlock()
	}

	p := worldgen.NewPipeline(src, tune.World.Workers)
	p.OnHeight(func(f worldgen.HeightFacet) { collect(st.DeliverHeight(f)) })
	p.OnBiome(func(f worldgen.BiomeFacet) { collect(st.DeliverBiome(f)) })
	if err := p.Generate(ctx, worldgen.Around(x, z, rs, rs, tune.World.RegionRadius)); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	seen := map[[3]int]bool{}
	var out []observerproto.SiteEventMsg
	for _, c := range found {
		pos := [3]int{c.WorldX, c.Height, c.WorldZ}
		if seen[pos] {
			continue
		}
		seen[pos] = true
		out = append(out, observerproto.SiteEventMsg{
			Type:            observerproto.TypeSiteEvent,
			ProtocolVersion: observerproto.Version,
			Seq:             uint64(len(out) + 1),
			Kind:            "SITE_ADDED",
			TimeMs:          now,
			Pos:             pos,
			Flatness:        c.Flatness,
			RawHeight:       c.Raw,
			PeakLike:        c.PeakLike,
			BiomeMatch:      c.BiomeMatch,
		})
	}
	return out, nil
}

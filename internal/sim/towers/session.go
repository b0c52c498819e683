// Package towers drives tower placement for one world: it turns finished
// terrain regions into candidate sites and periodically builds the best of
// them once their chunks are loaded.
package towers

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/placer"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/stitch"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
)

type Placer interface {
	Place(s registry.Site, templateID string) (placer.Placement, error)
}

type Config struct {
	Template           string
	DrainInterval      time.Duration
	PlacementsPerDrain int
	InboxSize          int
}

// Tower is a built site and how it was stamped.
type Tower struct {
	Site     registry.Site `json:"site"`
	Template string        `json:"template"`
	Rotation int           `json:"rotation"`
}

type Metrics struct {
	Candidates    uint64          `json:"candidates"`
	Added         uint64          `json:"added"`
	Duplicates    uint64          `json:"duplicates"`
	InboxOverflow uint64          `json:"inbox_overflow"`
	Built         uint64          `json:"built"`
	Reclaimed     uint64          `json:"reclaimed"`
	Rejected      uint64          `json:"rejected"`
	Drains        uint64          `json:"drains"`
	StitchErrors  uint64          `json:"stitch_errors"`
	SinkErrors    uint64          `json:"sink_errors"`
	Registry      registry.Counts `json:"registry"`
	Stitch        stitch.Stats    `json:"stitch"`
}

type DrainResult struct {
	Built     int
	Reclaimed int
	Rejected  int
}

type Session struct {
	cfg    Config
	logger *log.Logger

	stitcher *stitch.Stitcher
	reg      *registry.Registry
	placer   Placer
	inbox    chan registry.Site

	sinkMu sync.RWMutex
	sink   EventSink

	towersMu sync.Mutex
	towers   map[registry.Pos]Tower

	drainMu sync.Mutex
	seq     atomic.Uint64
	now     func() time.Time

	candidates, added, duplicates, overflow atomic.Uint64
	built, reclaimed, rejected, drains      atomic.Uint64
	stitchErrors, sinkErrors                atomic.Uint64
}

func New(cfg Config, st *stitch.Stitcher, pl Placer, logger *log.Logger) *Session {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 10 * time.Second
	}
	if cfg.PlacementsPerDrain <= 0 {
		cfg.PlacementsPerDrain = 1
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[towers] ", log.LstdFlags)
	}
	return &Session{
		cfg:      cfg,
		logger:   logger,
		stitcher: st,
		reg:      registry.New(),
		placer:   pl,
		inbox:    make(chan registry.Site, cfg.InboxSize),
		towers:   map[registry.Pos]Tower{},
		now:      time.Now,
	}
}

func (s *Session) Registry() *registry.Registry { return s.reg }
func (s *Session) Stitcher() *stitch.Stitcher   { return s.stitcher }
func (s *Session) Template() string             { return s.cfg.Template }

func (s *Session) SetEventSink(sink EventSink) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

// Attach subscribes the session to a generation pipeline.
func (s *Session) Attach(p *worldgen.Pipeline) {
	p.OnHeight(s.HandleHeight)
	p.OnBiome(s.HandleBiome)
}

func (s *Session) HandleHeight(f worldgen.HeightFacet) {
	cands, err := s.stitcher.DeliverHeight(f)
	s.afterDeliver(f.Region, cands, err)
}

func (s *Session) HandleBiome(f worldgen.BiomeFacet) {
	cands, err := s.stitcher.DeliverBiome(f)
	s.afterDeliver(f.Region, cands, err)
}

func (s *Session) afterDeliver(r worldgen.Region, cands []scan.Candidate, err error) {
	if err != nil {
		s.stitchErrors.Add(1)
		s.logger.Printf("stitch %v: %v", r, err)
	}
	for _, c := range cands {
		s.Submit(c)
	}
}

// Submit queues a candidate for the run loop. When the inbox is full the
// site goes straight to the registry.
func (s *Session) Submit(c scan.Candidate) {
	s.candidates.Add(1)
	site := registry.FromCandidate(c)
	select {
	case s.inbox <- site:
	default:
		s.overflow.Add(1)
		s.add(site)
	}
}

func (s *Session) add(site registry.Site) {
	if !s.reg.Add(site) {
		s.duplicates.Add(1)
		return
	}
	s.added.Add(1)
	s.emit(Event{Kind: KindAdded, Site: site})
}

func (s *Session) pumpInbox() {
	for {
		select {
		case site := <-s.inbox:
			s.add(site)
		default:
			return
		}
	}
}

// Run adds queued sites as they arrive and drains the registry on every
// interval until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case site := <-s.inbox:
			s.add(site)
		case <-ticker.C:
			if res := s.Drain(); res.Built > 0 || res.Rejected > 0 {
				s.logger.Printf("drain: built=%d reclaimed=%d rejected=%d", res.Built, res.Reclaimed, res.Rejected)
			}
		}
	}
}

// Drain tries pending sites highest first until PlacementsPerDrain towers
// are built. Sites whose area is not loaded go back to pending after the
// pass, so each site is tried at most once per drain.
func (s *Session) Drain() DrainResult {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()
	s.drains.Add(1)
	s.pumpInbox()

	var res DrainResult
	var retry []registry.Site
	for res.Built < s.cfg.PlacementsPerDrain {
		site, ok := s.reg.TakeNext()
		if !ok {
			break
		}
		attempt := s.reg.Attempts(site.Pos)
		s.emit(Event{Kind: KindChecking, Site: site, Template: s.cfg.Template, Attempt: attempt})

		pl, err := s.placer.Place(site, s.cfg.Template)
		switch {
		case err == nil:
			s.reg.MarkBuilt(site)
			s.recordTower(Tower{Site: site, Template: pl.Template, Rotation: pl.Rotation})
			s.built.Add(1)
			res.Built++
			detail := ""
			if pl.AlreadyPresent {
				detail = "already present"
			}
			s.emit(Event{Kind: KindBuilt, Site: site, Template: pl.Template, Rotation: pl.Rotation, Attempt: attempt, Detail: detail, Spawns: pl.Spawns})
			for _, sp := range pl.Spawns {
				s.emit(Event{Kind: KindSpawn, Site: site, Template: pl.Template, Detail: sp.Prefab, Spawns: []placer.Spawn{sp}})
			}
		case errors.Is(err, placer.ErrNotLoaded):
			retry = append(retry, site)
		default:
			s.reg.Reject(site)
			s.rejected.Add(1)
			res.Rejected++
			s.logger.Printf("site %v rejected: %v", site.Pos, err)
			s.emit(Event{Kind: KindRejected, Site: site, Template: s.cfg.Template, Attempt: attempt, Detail: err.Error()})
		}
	}
	for _, site := range retry {
		if s.reg.Reclaim(site) {
			s.reclaimed.Add(1)
			res.Reclaimed++
			s.emit(Event{Kind: KindReclaimed, Site: site, Template: s.cfg.Template, Attempt: s.reg.Attempts(site.Pos)})
		}
	}
	return res
}

func (s *Session) emit(e Event) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()

	e.Seq = s.seq.Add(1)
	if e.Time.IsZero() {
		e.Time = s.now().UTC()
	}
	if sink == nil {
		return
	}
	if err := sink.WriteSiteEvent(e); err != nil {
		s.sinkErrors.Add(1)
		s.logger.Printf("event sink: %v", err)
	}
}

func (s *Session) recordTower(t Tower) {
	s.towersMu.Lock()
	s.towers[t.Site.Pos] = t
	s.towersMu.Unlock()
}

// Towers lists built towers, highest first.
func (s *Session) Towers() []Tower {
	s.towersMu.Lock()
	out := make([]Tower, 0, len(s.towers))
	for _, t := range s.towers {
		out = append(out, t)
	}
	s.towersMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Site.Pos, out[j].Site.Pos
		if a.Y != b.Y {
			return a.Y > b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}

func (s *Session) Metrics() Metrics {
	return Metrics{
		Candidates:    s.candidates.Load(),
		Added:         s.added.Load(),
		Duplicates:    s.duplicates.Load(),
		InboxOverflow: s.overflow.Load(),
		Built:         s.built.Load(),
		Reclaimed:     s.reclaimed.Load(),
		Rejected:      s.rejected.Load(),
		Drains:        s.drains.Load(),
		StitchErrors:  s.stitchErrors.Load(),
		SinkErrors:    s.sinkErrors.Load(),
		Registry:      s.reg.Counts(),
		Stitch:        s.stitcher.Stats(),
	}
}

// Package scan finds peak-like or flat-and-high cells in a height grid.
package scan

import (
	"math"
	"sort"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/grid"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

// Config bounds the angle profile used to call a cell peak-like. Angles are
// in degrees; a ring passes when at most MaxAbove of its eight samples rise
// above MaxAngle as seen from the cell.
type Config struct {
	NearRadius   int
	NearMaxAngle float64
	NearMaxAbove int

	FarRadius   int
	FarMaxAngle float64
	FarMaxAbove int

	MinHeight int

	FlatHighFlatness int
	FlatHighHeight   int

	Biomes            []gen.Biome
	RequireBiomeMatch bool
}

func DefaultConfig() Config {
	return Config{
		NearRadius:        2,
		NearMaxAngle:      1.0,
		NearMaxAbove:      0,
		FarRadius:         5,
		FarMaxAngle:       -20,
		FarMaxAbove:       2,
		MinHeight:         75,
		FlatHighFlatness:  2,
		FlatHighHeight:    150,
		Biomes:            []gen.Biome{gen.Mountains, gen.Snow, gen.Plains},
		RequireBiomeMatch: true,
	}
}

// Candidate is a scored cell in world coordinates.
type Candidate struct {
	WorldX     int
	WorldZ     int
	Height     int
	Raw        float32
	Flatness   int
	PeakLike   bool
	BiomeMatch bool
}

// Better orders candidates by height, then flatness, then position so that
// selection is deterministic.
func Better(a, b Candidate) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	if a.Flatness != b.Flatness {
		return a.Flatness > b.Flatness
	}
	if a.WorldX != b.WorldX {
		return a.WorldX < b.WorldX
	}
	return a.WorldZ < b.WorldZ
}

// preferred ranks biome matches ahead of mismatches, then falls back to
// Better.
func preferred(a, b Candidate) bool {
	if a.BiomeMatch != b.BiomeMatch {
		return a.BiomeMatch
	}
	return Better(a, b)
}

// ScanWindow is an inclusive range of grid-local cells allowed as centres.
type ScanWindow struct {
	MinX, MinZ int
	MaxX, MaxZ int
}

// Whole covers every cell of g.
func Whole(g *grid.Grid) ScanWindow {
	return ScanWindow{MaxX: g.SizeX - 1, MaxZ: g.SizeZ - 1}
}

// Interior keeps cells at least margin away from every edge of g. The
// window is empty when g is narrower than 2*margin+1.
func Interior(g *grid.Grid, margin int) ScanWindow {
	if margin < 0 {
		margin = 0
	}
	return ScanWindow{
		MinX: margin,
		MinZ: margin,
		MaxX: g.SizeX - 1 - margin,
		MaxZ: g.SizeZ - 1 - margin,
	}
}

func (w ScanWindow) Empty() bool { return w.MinX > w.MaxX || w.MinZ > w.MaxZ }

func (w ScanWindow) Contains(x, z int) bool {
	return x >= w.MinX && x <= w.MaxX && z >= w.MinZ && z <= w.MaxZ
}

// BiomeFunc resolves the biome of a world column.
type BiomeFunc func(worldX, worldZ int) gen.Biome

type Scanner struct {
	cfg    Config
	biomes map[gen.Biome]struct{}
}

func New(cfg Config) *Scanner {
	s := &Scanner{cfg: cfg, biomes: map[gen.Biome]struct{}{}}
	for _, b := range cfg.Biomes {
		s.biomes[b] = struct{}{}
	}
	return s
}

func (s *Scanner) Config() Config { return s.cfg }

// Candidates returns every qualifying cell of g, biome matches first and
// then best first. A nil biomeAt disables the biome filter. It is a
// diagnostic listing; Best is the scan result.
func (s *Scanner) Candidates(g *grid.Grid, biomeAt BiomeFunc) []Candidate {
	var out []Candidate
	g.Each(func(n *grid.Node) {
		if c, ok := s.Evaluate(g, n, biomeAt); ok {
			out = append(out, c)
		}
	})
	sort.Slice(out, func(i, j int) bool { return preferred(out[i], out[j]) })
	return out
}

// Best is the scan result: exactly one site for the whole grid, or none.
func (s *Scanner) Best(g *grid.Grid, biomeAt BiomeFunc) (Candidate, bool) {
	return s.BestIn(g, Whole(g), biomeAt)
}

// BestIn returns the single best candidate centred inside w. Rings may
// still read cells outside w. A biome match always beats a mismatch, and a
// mismatch is only returned when RequireBiomeMatch is off and nothing in w
// matches.
func (s *Scanner) BestIn(g *grid.Grid, w ScanWindow, biomeAt BiomeFunc) (Candidate, bool) {
	var best Candidate
	found := false
	if w.Empty() {
		return best, false
	}
	g.Each(func(n *grid.Node) {
		if !w.Contains(n.X, n.Z) {
			return
		}
		c, ok := s.Evaluate(g, n, biomeAt)
		if !ok {
			return
		}
		if !found || preferred(c, best) {
			best = c
			found = true
		}
	})
	return best, found
}

// Evaluate scores one node. Nodes below MinHeight, or neither peak-like nor
// flat and high, are rejected.
func (s *Scanner) Evaluate(g *grid.Grid, n *grid.Node, biomeAt BiomeFunc) (Candidate, bool) {
	if n.Height < s.cfg.MinHeight {
		return Candidate{}, false
	}
	flat := Flatness(g, n)
	peak := s.PeakLike(g, n)
	flatHigh := flat > s.cfg.FlatHighFlatness && n.Height > s.cfg.FlatHighHeight
	if !peak && !flatHigh {
		return Candidate{}, false
	}
	c := Candidate{
		WorldX:     n.WorldX,
		WorldZ:     n.WorldZ,
		Height:     n.Height,
		Raw:        n.Raw,
		Flatness:   flat,
		PeakLike:   peak,
		BiomeMatch: s.biomeMatch(g, n, biomeAt),
	}
	if s.cfg.RequireBiomeMatch && !c.BiomeMatch {
		return Candidate{}, false
	}
	return c, true
}

// PeakLike is true for a level cell whose near ring stays within the near
// angle bound and whose far ring mostly falls away.
func (s *Scanner) PeakLike(g *grid.Grid, n *grid.Node) bool {
	if !n.LevelAround() {
		return false
	}
	near, ok := countAbove(g, n, s.cfg.NearRadius, s.cfg.NearMaxAngle)
	if !ok || near > s.cfg.NearMaxAbove {
		return false
	}
	far, ok := countAbove(g, n, s.cfg.FarRadius, s.cfg.FarMaxAngle)
	return ok && far <= s.cfg.FarMaxAbove
}

func countAbove(g *grid.Grid, n *grid.Node, radius int, maxAngle float64) (int, bool) {
	ring, err := g.NeighboursAtDistance(n, radius)
	if err != nil {
		return 0, false
	}
	above := 0
	for _, m := range ring {
		if AngleTo(n, m) > maxAngle {
			above++
		}
	}
	return above, true
}

// AngleTo is the elevation angle in degrees from one node to another.
func AngleTo(from, to *grid.Node) float64 {
	rise := float64(to.Height - from.Height)
	return math.Atan2(rise, grid.Distance(from, to)) * 180 / math.Pi
}

// Flatness is the largest r such that every cell within Chebyshev distance r
// of n is in the grid and has n's height.
func Flatness(g *grid.Grid, n *grid.Node) int {
	for r := 1; ; r++ {
		if !ringMatches(g, n, r) {
			return r - 1
		}
	}
}

func ringMatches(g *grid.Grid, n *grid.Node, r int) bool {
	same := func(x, z int) bool {
		m, err := g.At(x, z)
		return err == nil && m.Height == n.Height
	}
	for i := -r; i <= r; i++ {
		if !same(n.X+i, n.Z-r) || !same(n.X+i, n.Z+r) {
			return false
		}
	}
	for j := -r + 1; j <= r-1; j++ {
		if !same(n.X-r, n.Z+j) || !same(n.X+r, n.Z+j) {
			return false
		}
	}
	return true
}

// biomeMatch checks the node and the four corners of its far ring, clamped
// into the grid.
func (s *Scanner) biomeMatch(g *grid.Grid, n *grid.Node, biomeAt BiomeFunc) bool {
	if biomeAt == nil {
		return true
	}
	r := s.cfg.FarRadius
	corners := [...][2]int{{0, 0}, {r, r}, {r, -r}, {-r, r}, {-r, -r}}
	for _, p := range corners {
		x := clamp(n.X+p[0], 0, g.SizeX-1)
		z := clamp(n.Z+p[1], 0, g.SizeZ-1)
		if _, ok := s.biomes[biomeAt(g.OriginX+x, g.OriginZ+z)]; !ok {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package stitch joins independently generated regions into 2x2 quads so a
// site near a region border is scanned with terrain on every side.
package stitch

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/askneller/WizardBattles/internal/sim/mathx"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
)

var ErrBadRegion = errors.New("stitch: region does not match configured size")

type Stats struct {
	Delivered  uint64 `json:"delivered"`
	Ignored    uint64 `json:"ignored"`
	Quads      uint64 `json:"quads"`
	Candidates uint64 `json:"candidates"`
	Evicted    uint64 `json:"evicted"`
	Stored     int    `json:"stored"`
}

// Stitcher stores region facets until each region has served in all four
// quad roles, then forgets it. Safe for concurrent Deliver calls.
type Stitcher struct {
	sizeX, sizeZ int
	tolerance    float64
	scanner      *scan.Scanner

	mu    sync.Mutex
	data  map[Key]*regionData
	roles map[Key]Role
	stats Stats
}

func New(sizeX, sizeZ int, tolerance float64, scanner *scan.Scanner) *Stitcher {
	return &Stitcher{
		sizeX:     sizeX,
		sizeZ:     sizeZ,
		tolerance: tolerance,
		scanner:   scanner,
		data:      map[Key]*regionData{},
		roles:     map[Key]Role{},
	}
}

func (s *Stitcher) RegionSize() (int, int) { return s.sizeX, s.sizeZ }

// DeliverHeight records a height facet and scans every quad it completes.
func (s *Stitcher) DeliverHeight(f worldgen.HeightFacet) ([]scan.Candidate, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %v has %d heights", ErrBadRegion, f.Region, len(f.Heights))
	}
	return s.deliver(f.Region, func(d *regionData) { d.height = &f })
}

// DeliverBiome records a biome facet and scans every quad it completes.
func (s *Stitcher) DeliverBiome(f worldgen.BiomeFacet) ([]scan.Candidate, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %v has %d biomes", ErrBadRegion, f.Region, len(f.Biomes))
	}
	return s.deliver(f.Region, func(d *regionData) { d.biome = &f })
}

func (s *Stitcher) checkRegion(r worldgen.Region) error {
	if r.SizeX != s.sizeX || r.SizeZ != s.sizeZ {
		return fmt.Errorf("%w: %v, want %dx%d", ErrBadRegion, r, s.sizeX, s.sizeZ)
	}
	if mathx.Mod(r.MinX, s.sizeX) != 0 || mathx.Mod(r.MinZ, s.sizeZ) != 0 {
		return fmt.Errorf("%w: %v is not aligned", ErrBadRegion, r)
	}
	return nil
}

func (s *Stitcher) deliver(r worldgen.Region, apply func(*regionData)) ([]scan.Candidate, error) {
	if err := s.checkRegion(r); err != nil {
		return nil, err
	}
	key := keyOf(r)

	s.mu.Lock()
	s.stats.Delivered++
	if s.roles[key] == allRoles {
		s.stats.Ignored++
		s.mu.Unlock()
		return nil, nil
	}
	d := s.data[key]
	if d == nil {
		d = &regionData{}
		s.data[key] = d
	}
	apply(d)
	quads := s.claimLocked(key)
	s.mu.Unlock()

	var out []scan.Candidate
	for _, q := range quads {
		g, err := q.Grid(s.tolerance)
		if err != nil {
			return out, fmt.Errorf("stitch: quad at %d,%d: %w", q.MinX, q.MinZ, err)
		}
		// Centres closer to the quad edge than the far ring are seen by a
		// neighbouring quad.
		w := scan.Interior(g, s.scanner.Config().FarRadius)
		if c, ok := s.scanner.BestIn(g, w, q.BiomeAt); ok {
			out = append(out, c)
		}
	}
	if len(out) > 0 {
		s.mu.Lock()
		s.stats.Candidates += uint64(len(out))
		s.mu.Unlock()
	}
	return out, nil
}

// claimLocked marks every quad that key can now complete as served and
// returns copies of them for scanning outside the lock.
func (s *Stitcher) claimLocked(key Key) []*QuadArea {
	var out []*QuadArea
	for _, role := range roles {
		if s.roles[key]&role != 0 {
			continue
		}
		ix, iz := role.offset()
		q := &QuadArea{
			MinX:  key.X - ix*s.sizeX,
			MinZ:  key.Z - iz*s.sizeZ,
			SizeX: s.sizeX,
			SizeZ: s.sizeZ,
		}
		keys := q.Keys()
		ready := true
		for i, k := range keys {
			d := s.data[k]
			if d == nil || !d.complete() {
				ready = false
				break
			}
			q.parts[i] = *d
		}
		if !ready {
			continue
		}
		for _, r := range roles {
			k := keys[r.index()]
			s.roles[k] |= r
			if s.roles[k] == allRoles {
				delete(s.data, k)
				s.stats.Evicted++
			}
		}
		s.stats.Quads++
		out = append(out, q)
	}
	return out
}

// Usage is how many of the four quad roles the region at key has served.
func (s *Stitcher) Usage(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bits.OnesCount8(uint8(s.roles[key]))
}

// Stored reports whether facets of the region at key are still held.
func (s *Stitcher) Stored(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *Stitcher) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Stored = len(s.data)
	return st
}

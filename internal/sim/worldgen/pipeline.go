package worldgen

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

type Source interface {
	HeightAt(x, z int) float32
	BiomeAt(x, z int) gen.Biome
}

type FacetKind int

const (
	FacetHeight FacetKind = iota
	FacetBiome
)

func (k FacetKind) String() string {
	if k == FacetBiome {
		return "biome"
	}
	return "height"
}

func SampleHeight(src Source, r Region) HeightFacet {
	f := HeightFacet{Region: r, Heights: make([]float32, r.SizeX*r.SizeZ)}
	for z := 0; z < r.SizeZ; z++ {
		for x := 0; x < r.SizeX; x++ {
			f.Heights[z*r.SizeX+x] = src.HeightAt(r.MinX+x, r.MinZ+z)
		}
	}
	return f
}

func SampleBiome(src Source, r Region) BiomeFacet {
	f := BiomeFacet{Region: r, Biomes: make([]gen.Biome, r.SizeX*r.SizeZ)}
	for z := 0; z < r.SizeZ; z++ {
		for x := 0; x < r.SizeX; x++ {
			f.Biomes[z*r.SizeX+x] = src.BiomeAt(r.MinX+x, r.MinZ+z)
		}
	}
	return f
}

type HeightListener func(HeightFacet)
type BiomeListener func(BiomeFacet)

// Pipeline samples regions on a bounded worker pool and hands every finished
// facet to the listeners registered for its kind. Listeners run on worker
// goroutines and must be safe for concurrent use.
type Pipeline struct {
	src     Source
	workers int

	mu     sync.RWMutex
	height []HeightListener
	biome  []BiomeListener

	regions atomic.Uint64
}

func NewPipeline(src Source, workers int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{src: src, workers: workers}
}

func (p *Pipeline) OnHeight(fn HeightListener) {
	p.mu.Lock()
	p.height = append(p.height, fn)
	p.mu.Unlock()
}

func (p *Pipeline) OnBiome(fn BiomeListener) {
	p.mu.Lock()
	p.biome = append(p.biome, fn)
	p.mu.Unlock()
}

// Listeners reports how many listeners are registered for kind.
func (p *Pipeline) Listeners(kind FacetKind) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if kind == FacetBiome {
		return len(p.biome)
	}
	return len(p.height)
}

func (p *Pipeline) Generated() uint64 { return p.regions.Load() }

// Generate samples every region. Regions still queued when ctx is cancelled
// are skipped.
func (p *Pipeline) Generate(ctx context.Context, regions []Region) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, r := range regions {
		r := r
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.generate(r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pipeline) generate(r Region) {
	h := SampleHeight(p.src, r)
	b := SampleBiome(p.src, r)

	p.mu.RLock()
	hl := append([]HeightListener(nil), p.height...)
	bl := append([]BiomeListener(nil), p.biome...)
	p.mu.RUnlock()

	for _, fn := range hl {
		fn(h)
	}
	for _, fn := range bl {
		fn(b)
	}
	p.regions.Add(1)
}

package worldgen

import (
	"context"
	"sync"
	"testing"

	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

type slopeSource struct{}

func (slopeSource) HeightAt(x, z int) float32 { return float32(x + 2*z) }
func (slopeSource) BiomeAt(x, z int) gen.Biome {
	if x < 0 {
		return gen.Desert
	}
	return gen.Plains
}

func TestRegionAtAligns(t *testing.T) {
	r := RegionAt(-1, 33, 32, 32)
	if r.MinX != -32 || r.MinZ != 32 {
		t.Fatalf("RegionAt = %v", r)
	}
	if !r.Contains(-1, 33) || r.Contains(0, 33) {
		t.Fatalf("Contains wrong for %v", r)
	}
}

func TestAroundOrdersByRing(t *testing.T) {
	rs := Around(5, 5, 16, 16, 2)
	if len(rs) != 25 {
		t.Fatalf("Around returned %d regions want 25", len(rs))
	}
	if rs[0].MinX != 0 || rs[0].MinZ != 0 {
		t.Fatalf("first region = %v", rs[0])
	}
	seen := map[Region]bool{}
	for _, r := range rs {
		if seen[r] {
			t.Fatalf("duplicate %v", r)
		}
		seen[r] = true
	}
	for _, r := range rs[1:9] {
		if r.MinX < -16 || r.MinX > 16 || r.MinZ < -16 || r.MinZ > 16 {
			t.Fatalf("ring 1 region out of place: %v", r)
		}
	}
}

func TestSampleFacetsRowMajor(t *testing.T) {
	r := Region{MinX: -2, MinZ: 10, SizeX: 4, SizeZ: 3}
	h := SampleHeight(slopeSource{}, r)
	if !h.Valid() || h.At(3, 2) != float32(1+2*12) {
		t.Fatalf("height facet wrong: %v", h.Heights)
	}
	b := SampleBiome(slopeSource{}, r)
	if !b.Valid() || b.At(0, 0) != gen.Desert || b.At(2, 1) != gen.Plains {
		t.Fatalf("biome facet wrong: %v", b.Biomes)
	}
}

func TestPipelineDeliversEveryFacet(t *testing.T) {
	p := NewPipeline(slopeSource{}, 3)
	var mu sync.Mutex
	heights := map[Region]int{}
	biomes := map[Region]int{}
	p.OnHeight(func(f HeightFacet) {
		mu.Lock()
		heights[f.Region]++
		mu.Unlock()
	})
	p.OnBiome(func(f BiomeFacet) {
		mu.Lock()
		biomes[f.Region]++
		mu.Unlock()
	})
	if p.Listeners(FacetHeight) != 1 || p.Listeners(FacetBiome) != 1 {
		t.Fatalf("listener count wrong")
	}

	regions := Around(0, 0, 8, 8, 1)
	if err := p.Generate(context.Background(), regions); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if p.Generated() != uint64(len(regions)) {
		t.Fatalf("generated %d want %d", p.Generated(), len(regions))
	}
	for _, r := range regions {
		if heights[r] != 1 || biomes[r] != 1 {
			t.Fatalf("%v delivered h=%d b=%d", r, heights[r], biomes[r])
		}
	}
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPipeline(slopeSource{}, 1)
	if err := p.Generate(ctx, Around(0, 0, 8, 8, 1)); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

package gen

import "testing"

func TestTerrainDeterministic(t *testing.T) {
	a := NewTerrain(DefaultTerrainParams(42))
	b := NewTerrain(DefaultTerrainParams(42))
	for x := -64; x < 64; x += 7 {
		for z := -64; z < 64; z += 5 {
			if a.HeightAt(x, z) != b.HeightAt(x, z) {
				t.Fatalf("height differs at %d,%d", x, z)
			}
			if a.BiomeAt(x, z) != b.BiomeAt(x, z) {
				t.Fatalf("biome differs at %d,%d", x, z)
			}
		}
	}
}

func TestTerrainHeightRange(t *testing.T) {
	p := DefaultTerrainParams(3)
	tr := NewTerrain(p)
	lo := p.BaseHeight - p.Amplitude - 1
	hi := p.BaseHeight + p.Amplitude + 1
	for x := -200; x < 200; x += 3 {
		h := float64(tr.HeightAt(x, -x))
		if h < lo || h > hi {
			t.Fatalf("height %f out of [%f,%f]", h, lo, hi)
		}
	}
}

func TestBiomeFollowsHeightBands(t *testing.T) {
	p := DefaultTerrainParams(9)
	tr := NewTerrain(p)
	for x := -300; x < 300; x += 11 {
		for z := -300; z < 300; z += 13 {
			h := int(tr.HeightAt(x, z))
			b := tr.BiomeAt(x, z)
			switch {
			case h < p.SeaLevel && b != Ocean:
				t.Fatalf("h=%d below sea level but biome %s", h, b)
			case h >= p.SnowLine && b != Snow:
				t.Fatalf("h=%d above snow line but biome %s", h, b)
			case h >= p.MountainLine && h < p.SnowLine && b != Mountains:
				t.Fatalf("h=%d in mountain band but biome %s", h, b)
			}
		}
	}
}

func TestParseBiome(t *testing.T) {
	if b, ok := ParseBiome("SNOW"); !ok || b != Snow {
		t.Fatalf("ParseBiome(SNOW)=%q,%v", b, ok)
	}
	if _, ok := ParseBiome("swamp"); ok {
		t.Fatalf("expected unknown biome")
	}
}

func TestInClusterDeterministic(t *testing.T) {
	hits := 0
	for x := 0; x < 64; x++ {
		for z := 0; z < 64; z++ {
			if InCluster(5, x, z, 32, 4, 1000) {
				hits++
			}
			if InCluster(5, x, z, 32, 4, 0) {
				t.Fatalf("zero probability must never hit")
			}
		}
	}
	if hits == 0 {
		t.Fatalf("expected certain clusters to cover some columns")
	}
}

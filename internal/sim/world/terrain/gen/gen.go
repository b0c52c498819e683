package gen

import (
	"math"

	"github.com/askneller/WizardBattles/internal/sim/mathx"
)

type Biome string

const (
	Plains    Biome = "PLAINS"
	Forest    Biome = "FOREST"
	Desert    Biome = "DESERT"
	Mountains Biome = "MOUNTAINS"
	Snow      Biome = "SNOW"
	Ocean     Biome = "OCEAN"
)

func ParseBiome(s string) (Biome, bool) {
	switch b := Biome(s); b {
	case Plains, Forest, Desert, Mountains, Snow, Ocean:
		return b, true
	}
	return "", false
}

// BiomeFrom picks a lowland biome from a region hash.
func BiomeFrom(noise uint64) Biome {
	switch noise % 3 {
	case 0:
		return Plains
	case 1:
		return Forest
	default:
		return Desert
	}
}

// RegionBiome is the lowland biome of the biome region containing (x,z).
func RegionBiome(seed int64, x, z, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := mathx.FloorDiv(x, regionSize)
	rz := mathx.FloorDiv(z, regionSize)
	return BiomeFrom(mathx.Hash2(seed, rx, rz))
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// InCluster reports whether (x,z) falls inside one of the hashed discs laid
// out on a grid of the given cell size.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := mathx.Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}
			cx := cgx*grid + int((h>>10)%uint64(grid))
			cz := cgz*grid + int((h>>20)%uint64(grid))
			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}

type TerrainParams struct {
	Seed            int64
	SeaLevel        int
	BaseHeight      float64
	Amplitude       float64
	Scale           float64 // blocks per lowest-octave lattice cell
	Octaves         int
	MountainLine    int
	SnowLine        int
	BiomeRegionSize int
}

func DefaultTerrainParams(seed int64) TerrainParams {
	return TerrainParams{
		Seed:            seed,
		SeaLevel:        62,
		BaseHeight:      96,
		Amplitude:       72,
		Scale:           96,
		Octaves:         4,
		MountainLine:    120,
		SnowLine:        150,
		BiomeRegionSize: 128,
	}
}

// Terrain is a deterministic height and biome source. It is safe for
// concurrent use.
type Terrain struct {
	p TerrainParams
}

func NewTerrain(p TerrainParams) *Terrain {
	d := DefaultTerrainParams(p.Seed)
	if p.Scale <= 0 {
		p.Scale = d.Scale
	}
	if p.Octaves <= 0 {
		p.Octaves = d.Octaves
	}
	if p.BiomeRegionSize <= 0 {
		p.BiomeRegionSize = d.BiomeRegionSize
	}
	if p.SnowLine < p.MountainLine {
		p.SnowLine = p.MountainLine
	}
	return &Terrain{p: p}
}

func (t *Terrain) Params() TerrainParams { return t.p }
func (t *Terrain) SeaLevel() int         { return t.p.SeaLevel }

// HeightAt returns the continuous surface height at the column (x,z).
func (t *Terrain) HeightAt(x, z int) float32 {
	n := fbm(t.p.Seed, float64(x)/t.p.Scale, float64(z)/t.p.Scale, t.p.Octaves)
	// Ridge shaping sharpens highs into peaks and leaves lowlands rolling.
	if n > 0 {
		n = n * (0.6 + 0.4*n)
	}
	h := t.p.BaseHeight + n*t.p.Amplitude
	if h < 1 {
		h = 1
	}
	return float32(h)
}

func (t *Terrain) BiomeAt(x, z int) Biome {
	h := mathx.FloorToInt(t.HeightAt(x, z))
	switch {
	case h < t.p.SeaLevel:
		return Ocean
	case h >= t.p.SnowLine:
		return Snow
	case h >= t.p.MountainLine:
		return Mountains
	}
	return RegionBiome(t.p.Seed+17, x, z, t.p.BiomeRegionSize)
}

func fbm(seed int64, x, z float64, octaves int) float64 {
	var sum, norm float64
	amp, freq := 1.0, 1.0
	for i := 0; i < octaves; i++ {
		sum += amp * valueNoise(seed+int64(i)*7919, x*freq, z*freq)
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / norm
}

func valueNoise(seed int64, x, z float64) float64 {
	x0 := math.Floor(x)
	z0 := math.Floor(z)
	ix, iz := int(x0), int(z0)
	u := mathx.SmoothStep(x - x0)
	w := mathx.SmoothStep(z - z0)

	v00 := mathx.Unit2(seed, ix, iz)
	v10 := mathx.Unit2(seed, ix+1, iz)
	v01 := mathx.Unit2(seed, ix, iz+1)
	v11 := mathx.Unit2(seed, ix+1, iz+1)
	return mathx.Lerp(mathx.Lerp(v00, v10, u), mathx.Lerp(v01, v11, u), w)
}

package worldgen

import (
	"fmt"

	"github.com/askneller/WizardBattles/internal/sim/mathx"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

// Region is an axis aligned column rectangle whose min corner is (MinX,MinZ).
type Region struct {
	MinX, MinZ   int
	SizeX, SizeZ int
}

func (r Region) Contains(x, z int) bool {
	return x >= r.MinX && x < r.MinX+r.SizeX && z >= r.MinZ && z < r.MinZ+r.SizeZ
}

func (r Region) String() string {
	return fmt.Sprintf("region(%d,%d %dx%d)", r.MinX, r.MinZ, r.SizeX, r.SizeZ)
}

// RegionAt returns the size-aligned region containing (x,z).
func RegionAt(x, z, sizeX, sizeZ int) Region {
	return Region{
		MinX:  mathx.FloorDiv(x, sizeX) * sizeX,
		MinZ:  mathx.FloorDiv(z, sizeZ) * sizeZ,
		SizeX: sizeX,
		SizeZ: sizeZ,
	}
}

// Around lists the aligned regions within radius regions of the one holding
// (x,z), nearest rings first so neighbouring regions complete close together.
func Around(x, z, sizeX, sizeZ, radius int) []Region {
	c := RegionAt(x, z, sizeX, sizeZ)
	out := []Region{c}
	for ring := 1; ring <= radius; ring++ {
		for i := -ring; i <= ring; i++ {
			for j := -ring; j <= ring; j++ {
				if mathx.Chebyshev(i, j) != ring {
					continue
				}
				out = append(out, Region{
					MinX:  c.MinX + i*sizeX,
					MinZ:  c.MinZ + j*sizeZ,
					SizeX: sizeX,
					SizeZ: sizeZ,
				})
			}
		}
	}
	return out
}

// HeightFacet carries the surface heights of one region, row-major by z.
type HeightFacet struct {
	Region  Region
	Heights []float32
}

func (f HeightFacet) At(x, z int) float32 { return f.Heights[z*f.Region.SizeX+x] }

func (f HeightFacet) Valid() bool {
	return f.Region.SizeX > 0 && f.Region.SizeZ > 0 && len(f.Heights) == f.Region.SizeX*f.Region.SizeZ
}

// BiomeFacet carries the biome of every column of one region, row-major by z.
type BiomeFacet struct {
	Region Region
	Biomes []gen.Biome
}

func (f BiomeFacet) At(x, z int) gen.Biome { return f.Biomes[z*f.Region.SizeX+x] }

func (f BiomeFacet) Valid() bool {
	return f.Region.SizeX > 0 && f.Region.SizeZ > 0 && len(f.Biomes) == f.Region.SizeX*f.Region.SizeZ
}

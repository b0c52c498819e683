package stitch

import (
	"fmt"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/grid"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
	"github.com/askneller/WizardBattles/internal/sim/worldgen"
)

// Key is the min corner of an aligned region.
type Key struct {
	X, Z int
}

func keyOf(r worldgen.Region) Key { return Key{X: r.MinX, Z: r.MinZ} }

// Role is the position a region takes inside a quad.
type Role uint8

const (
	DownLeft Role = 1 << iota
	DownRight
	UpLeft
	UpRight

	allRoles = DownLeft | DownRight | UpLeft | UpRight
)

var roles = [4]Role{DownLeft, DownRight, UpLeft, UpRight}

func (r Role) String() string {
	switch r {
	case DownLeft:
		return "DOWN_LEFT"
	case DownRight:
		return "DOWN_RIGHT"
	case UpLeft:
		return "UP_LEFT"
	case UpRight:
		return "UP_RIGHT"
	}
	return fmt.Sprintf("roles(%04b)", uint8(r))
}

// offset is where a region sits relative to the quad's down-left corner, in
// region units. Right is +x, up is +z.
func (r Role) offset() (ix, iz int) {
	switch r {
	case DownRight:
		return 1, 0
	case UpLeft:
		return 0, 1
	case UpRight:
		return 1, 1
	}
	return 0, 0
}

func (r Role) index() int {
	switch r {
	case DownRight:
		return 1
	case UpLeft:
		return 2
	case UpRight:
		return 3
	}
	return 0
}

type regionData struct {
	height *worldgen.HeightFacet
	biome  *worldgen.BiomeFacet
}

func (d regionData) complete() bool { return d.height != nil && d.biome != nil }

// QuadArea is four mutually adjacent regions seen as one 2*SizeX by 2*SizeZ
// rectangle anchored at the down-left region's min corner.
type QuadArea struct {
	MinX, MinZ   int
	SizeX, SizeZ int

	parts [4]regionData
}

func (q *QuadArea) Width() int { return 2 * q.SizeX }
func (q *QuadArea) Depth() int { return 2 * q.SizeZ }

func (q *QuadArea) Keys() [4]Key {
	var out [4]Key
	for _, r := range roles {
		ix, iz := r.offset()
		out[r.index()] = Key{X: q.MinX + ix*q.SizeX, Z: q.MinZ + iz*q.SizeZ}
	}
	return out
}

func (q *QuadArea) part(x, z int) (regionData, int, int, error) {
	if x < 0 || z < 0 || x >= q.Width() || z >= q.Depth() {
		return regionData{}, 0, 0, fmt.Errorf("%w: (%d,%d) outside quad", grid.ErrOutOfBounds, x, z)
	}
	i := 0
	if x >= q.SizeX {
		i |= 1
		x -= q.SizeX
	}
	if z >= q.SizeZ {
		i |= 2
		z -= q.SizeZ
	}
	return q.parts[i], x, z, nil
}

// HeightAt samples the merged height at quad-local (x,z).
func (q *QuadArea) HeightAt(x, z int) (float32, error) {
	p, lx, lz, err := q.part(x, z)
	if err != nil {
		return 0, err
	}
	return p.height.At(lx, lz), nil
}

// BiomeAt resolves a world column inside the quad.
func (q *QuadArea) BiomeAt(worldX, worldZ int) gen.Biome {
	p, lx, lz, err := q.part(worldX-q.MinX, worldZ-q.MinZ)
	if err != nil {
		return ""
	}
	return p.biome.At(lx, lz)
}

// Grid builds the merged height grid of the quad.
func (q *QuadArea) Grid(tolerance float64) (*grid.Grid, error) {
	return grid.Build(q.Width(), q.Depth(), q.MinX, q.MinZ, tolerance, func(x, z int) float32 {
		h, _ := q.HeightAt(x, z)
		return h
	})
}

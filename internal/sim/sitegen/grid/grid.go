// Package grid holds a rectangle of surface heights with the slope from each
// cell to its eight compass neighbours precomputed.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/askneller/WizardBattles/internal/sim/mathx"
)

// DefaultTolerance is the height difference below which two neighbours are
// considered level.
const DefaultTolerance = 0.7

var ErrOutOfBounds = errors.New("grid: position out of bounds")

// Direction is the slope from a node towards one neighbour.
type Direction uint8

const (
	Unset Direction = iota
	Up
	Down
	Level
	Edge
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Level:
		return "LEVEL"
	case Edge:
		return "EDGE"
	default:
		return "UNSET"
	}
}

// Inverse is the same slope seen from the other end.
func (d Direction) Inverse() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	}
	return d
}

// Compass names the eight neighbours. North is +x, East is +z.
type Compass uint8

const (
	North Compass = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var compassOffsets = [8][2]int{
	North:     {1, 0},
	NorthEast: {1, 1},
	East:      {0, 1},
	SouthEast: {-1, 1},
	South:     {-1, 0},
	SouthWest: {-1, -1},
	West:      {0, -1},
	NorthWest: {1, -1},
}

var compassNames = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (c Compass) Offset() (dx, dz int) { return compassOffsets[c][0], compassOffsets[c][1] }
func (c Compass) Opposite() Compass     { return (c + 4) % 8 }
func (c Compass) String() string        { return compassNames[c] }

// Node is one grid cell. X and Z are grid-local.
type Node struct {
	X, Z           int
	WorldX, WorldZ int
	Height         int
	Raw            float32
	Dirs           [8]Direction
}

func (n *Node) Dir(c Compass) Direction { return n.Dirs[c] }

// LevelAround is true when every neighbour is level with n. Edge nodes are
// never level around.
func (n *Node) LevelAround() bool {
	for _, d := range n.Dirs {
		if d != Level {
			return false
		}
	}
	return true
}

func (n *Node) LevelOrDownAround() bool {
	for _, d := range n.Dirs {
		if d != Level && d != Down {
			return false
		}
	}
	return true
}

func (n *Node) String() string {
	return fmt.Sprintf("node(%d,%d h=%d)", n.WorldX, n.WorldZ, n.Height)
}

// HeightFunc samples the surface height at a grid-local position.
type HeightFunc func(x, z int) float32

type Grid struct {
	SizeX, SizeZ     int
	OriginX, OriginZ int

	tolerance float64
	nodes     []Node // z*SizeX + x
}

// Build samples every cell of a sizeX by sizeZ rectangle whose (0,0) corner
// sits at world (originX, originZ). Cells are placed x-major; each placed
// cell resolves the slope to its already placed neighbours on both sides.
func Build(sizeX, sizeZ, originX, originZ int, tolerance float64, height HeightFunc) (*Grid, error) {
	if sizeX <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("grid: invalid size %dx%d", sizeX, sizeZ)
	}
	if height == nil {
		return nil, errors.New("grid: nil height func")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	g := &Grid{
		SizeX:     sizeX,
		SizeZ:     sizeZ,
		OriginX:   originX,
		OriginZ:   originZ,
		tolerance: tolerance,
		nodes:     make([]Node, sizeX*sizeZ),
	}
	for x := 0; x < sizeX; x++ {
		for z := 0; z < sizeZ; z++ {
			g.place(x, z, height(x, z))
		}
	}
	return g, nil
}

// FromHeights builds a grid from a row-major (z*sizeX + x) height slice.
func FromHeights(sizeX, sizeZ, originX, originZ int, tolerance float64, heights []float32) (*Grid, error) {
	if len(heights) != sizeX*sizeZ {
		return nil, fmt.Errorf("grid: %d heights for %dx%d", len(heights), sizeX, sizeZ)
	}
	return Build(sizeX, sizeZ, originX, originZ, tolerance, func(x, z int) float32 {
		return heights[z*sizeX+x]
	})
}

var backward = [...]Compass{SouthWest, South, West, SouthEast}

func (g *Grid) place(x, z int, raw float32) {
	n := &g.nodes[g.index(x, z)]
	*n = Node{
		X:      x,
		Z:      z,
		WorldX: g.OriginX + x,
		WorldZ: g.OriginZ + z,
		Height: mathx.FloorToInt(raw),
		Raw:    raw,
	}
	for c := North; c <= NorthWest; c++ {
		dx, dz := c.Offset()
		if !g.InBounds(x+dx, z+dz) {
			n.Dirs[c] = Edge
		}
	}
	for _, c := range backward {
		dx, dz := c.Offset()
		if !g.InBounds(x+dx, z+dz) {
			continue
		}
		other := &g.nodes[g.index(x+dx, z+dz)]
		d := g.slope(n, other)
		n.Dirs[c] = d
		other.Dirs[c.Opposite()] = d.Inverse()
	}
}

func (g *Grid) slope(from, to *Node) Direction {
	diff := float64(from.Height - to.Height)
	switch {
	case diff > g.tolerance:
		return Down
	case diff < -g.tolerance:
		return Up
	}
	return Level
}

func (g *Grid) index(x, z int) int { return z*g.SizeX + x }

func (g *Grid) Tolerance() float64 { return g.tolerance }

func (g *Grid) InBounds(x, z int) bool {
	return x >= 0 && x < g.SizeX && z >= 0 && z < g.SizeZ
}

func (g *Grid) At(x, z int) (*Node, error) {
	if !g.InBounds(x, z) {
		return nil, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfBounds, x, z, g.SizeX, g.SizeZ)
	}
	return &g.nodes[g.index(x, z)], nil
}

// AtWorld looks a node up by world column.
func (g *Grid) AtWorld(wx, wz int) (*Node, error) {
	return g.At(wx-g.OriginX, wz-g.OriginZ)
}

// NeighboursAtDistance returns the eight nodes at Chebyshev distance d along
// the compass directions, in compass order. Any of them lying outside the
// grid fails the whole lookup.
func (g *Grid) NeighboursAtDistance(n *Node, d int) ([8]*Node, error) {
	var out [8]*Node
	if d <= 0 {
		return out, fmt.Errorf("grid: invalid distance %d", d)
	}
	for c := North; c <= NorthWest; c++ {
		dx, dz := c.Offset()
		m, err := g.At(n.X+dx*d, n.Z+dz*d)
		if err != nil {
			return out, err
		}
		out[c] = m
	}
	return out, nil
}

// Each calls fn for every node in x-major order.
func (g *Grid) Each(fn func(n *Node)) {
	for x := 0; x < g.SizeX; x++ {
		for z := 0; z < g.SizeZ; z++ {
			fn(&g.nodes[g.index(x, z)])
		}
	}
}

// Distance is the horizontal distance between two nodes in blocks.
func Distance(a, b *Node) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Z-b.Z))
}

package grid

import (
	"errors"
	"testing"
)

func flat(h float32) HeightFunc {
	return func(x, z int) float32 { return h }
}

func TestLevelAroundOnFlatGrid(t *testing.T) {
	g, err := Build(5, 4, 100, -20, DefaultTolerance, flat(64.2))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	g.Each(func(n *Node) {
		interior := n.X > 0 && n.X < g.SizeX-1 && n.Z > 0 && n.Z < g.SizeZ-1
		if n.LevelAround() != interior {
			t.Fatalf("%v LevelAround=%v interior=%v dirs=%v", n, n.LevelAround(), interior, n.Dirs)
		}
		if n.Height != 64 {
			t.Fatalf("height = %d want 64", n.Height)
		}
	})
}

func TestEdgeRules(t *testing.T) {
	g, _ := Build(3, 3, 0, 0, DefaultTolerance, flat(1))
	cases := []struct {
		x, z  int
		edges []Compass
	}{
		{0, 1, []Compass{South, SouthWest, SouthEast}},
		{1, 0, []Compass{SouthWest, West, NorthWest}},
		{2, 1, []Compass{NorthWest, North, NorthEast}},
		{1, 2, []Compass{NorthEast, East, SouthEast}},
	}
	for _, c := range cases {
		n, err := g.At(c.x, c.z)
		if err != nil {
			t.Fatalf("At: %v", err)
		}
		want := map[Compass]bool{}
		for _, e := range c.edges {
			want[e] = true
		}
		for d := North; d <= NorthWest; d++ {
			if (n.Dir(d) == Edge) != want[d] {
				t.Fatalf("(%d,%d) %s = %s", c.x, c.z, d, n.Dir(d))
			}
		}
	}
}

func TestDirectionsAreSymmetric(t *testing.T) {
	heights := func(x, z int) float32 { return float32((x*7+z*13)%5) * 0.6 }
	g, _ := Build(6, 7, 0, 0, DefaultTolerance, heights)
	g.Each(func(n *Node) {
		for c := North; c <= NorthWest; c++ {
			if n.Dir(c) == Unset {
				t.Fatalf("%v %s left unset", n, c)
			}
			dx, dz := c.Offset()
			m, err := g.At(n.X+dx, n.Z+dz)
			if err != nil {
				if n.Dir(c) != Edge {
					t.Fatalf("%v %s out of grid but %s", n, c, n.Dir(c))
				}
				continue
			}
			if m.Dir(c.Opposite()) != n.Dir(c).Inverse() {
				t.Fatalf("%v %s=%s but reverse %s", n, c, n.Dir(c), m.Dir(c.Opposite()))
			}
		}
	})
}

func TestSlopeUsesTolerance(t *testing.T) {
	g, _ := FromHeights(3, 1, 0, 0, DefaultTolerance, []float32{10, 11.9, 10.5})
	a, _ := g.At(0, 0)
	b, _ := g.At(1, 0)
	c, _ := g.At(2, 0)
	if a.Dir(North) != Up || b.Dir(South) != Down {
		t.Fatalf("10 -> 11 should be up: %s / %s", a.Dir(North), b.Dir(South))
	}
	if b.Dir(North) != Down || c.Dir(South) != Up {
		t.Fatalf("11 -> 10 should be down: %s / %s", b.Dir(North), c.Dir(South))
	}

	g2, _ := FromHeights(2, 1, 0, 0, DefaultTolerance, []float32{10.9, 10.1})
	p, _ := g2.At(0, 0)
	if p.Dir(North) != Level {
		t.Fatalf("equal floors must be level, got %s", p.Dir(North))
	}
}

func TestAtOutOfBounds(t *testing.T) {
	g, _ := Build(2, 2, 0, 0, 0, flat(0))
	if _, err := g.At(2, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	n, _ := g.At(0, 0)
	if _, err := g.NeighboursAtDistance(n, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds from corner neighbours, got %v", err)
	}
}

func TestNeighboursAtDistance(t *testing.T) {
	g, _ := Build(11, 11, 50, 60, 0, flat(3))
	n, _ := g.At(5, 5)
	ns, err := g.NeighboursAtDistance(n, 5)
	if err != nil {
		t.Fatalf("neighbours: %v", err)
	}
	want := [8][2]int{{10, 5}, {10, 10}, {5, 10}, {0, 10}, {0, 5}, {0, 0}, {5, 0}, {10, 0}}
	for i, m := range ns {
		if m.X != want[i][0] || m.Z != want[i][1] {
			t.Fatalf("neighbour %d = (%d,%d) want %v", i, m.X, m.Z, want[i])
		}
	}
	w, err := g.AtWorld(55, 65)
	if err != nil || w != n {
		t.Fatalf("AtWorld mismatch: %v %v", w, err)
	}
}

func TestFromHeightsLengthMismatch(t *testing.T) {
	if _, err := FromHeights(3, 3, 0, 0, 0, make([]float32, 8)); err == nil {
		t.Fatalf("expected length error")
	}
}

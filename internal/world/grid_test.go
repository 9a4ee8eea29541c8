package world

import (
	"math/rand"
	"testing"
)

func TestNeighborhoodClipsAtEdges(t *testing.T) {
	g := NewGrid(5, 5)

	if got := len(g.Neighborhood(Cell{X: 0, Y: 0}, 1, false)); got != 3 {
		t.Fatalf("corner radius 1: got %d cells want 3", got)
	}
	if got := len(g.Neighborhood(Cell{X: 2, Y: 2}, 1, false)); got != 8 {
		t.Fatalf("interior radius 1: got %d cells want 8", got)
	}
	if got := len(g.Neighborhood(Cell{X: 2, Y: 2}, 1, true)); got != 9 {
		t.Fatalf("interior radius 1 with center: got %d want 9", got)
	}
	if got := len(g.Neighborhood(Cell{X: 2, Y: 2}, 10, true)); got != 25 {
		t.Fatalf("radius larger than grid: got %d want 25", got)
	}
	for _, c := range g.Neighborhood(Cell{X: 4, Y: 4}, 2, true) {
		if !g.InBounds(c) {
			t.Fatalf("out-of-bounds cell returned: %v", c)
		}
	}
}

func TestAdjacentMatchesRadiusOne(t *testing.T) {
	g := NewGrid(4, 3)
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			c := Cell{X: x, Y: y}
			a := g.Adjacent(c)
			n := g.Neighborhood(c, 1, false)
			if len(a) != len(n) {
				t.Fatalf("%v: adjacent %d vs neighborhood %d", c, len(a), len(n))
			}
			for i := range a {
				if a[i] != n[i] {
					t.Fatalf("%v: order mismatch at %d: %v vs %v", c, i, a[i], n[i])
				}
			}
		}
	}
}

func TestMultipleOccupantsPerCell(t *testing.T) {
	g := NewGrid(3, 3)
	c := Cell{X: 1, Y: 1}
	for id := uint64(1); id <= 3; id++ {
		if err := g.Place(id, c); err != nil {
			t.Fatalf("Place(%d): %v", id, err)
		}
	}
	if got := g.At(c); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("At: got %v", got)
	}

	if err := g.Move(2, Cell{X: 0, Y: 0}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got := g.At(c); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("after move: got %v", got)
	}
	if p, ok := g.Position(2); !ok || p != (Cell{X: 0, Y: 0}) {
		t.Fatalf("Position(2): %v %v", p, ok)
	}

	if !g.Remove(1) || g.Remove(1) {
		t.Fatalf("Remove should succeed once")
	}
	if g.Len() != 2 {
		t.Fatalf("Len: got %d want 2", g.Len())
	}
}

func TestNeighborsExcludesCenterOnRequest(t *testing.T) {
	g := NewGrid(5, 5)
	_ = g.Place(1, Cell{X: 2, Y: 2})
	_ = g.Place(2, Cell{X: 3, Y: 3})
	_ = g.Place(3, Cell{X: 4, Y: 4})

	got := g.Neighbors(Cell{X: 2, Y: 2}, 1, false)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("radius 1 without center: got %v", got)
	}
	got = g.Neighbors(Cell{X: 2, Y: 2}, 2, true)
	if len(got) != 3 {
		t.Fatalf("radius 2 with center: got %v", got)
	}
}

func TestPlaceRejectsOutOfBounds(t *testing.T) {
	g := NewGrid(2, 2)
	if err := g.Place(1, Cell{X: 2, Y: 0}); err == nil {
		t.Fatalf("expected out-of-bounds error")
	}
	if err := g.Move(9, Cell{X: 0, Y: 0}); err == nil {
		t.Fatalf("expected error moving unplaced occupant")
	}
}

func TestDistances(t *testing.T) {
	if d := Distance(Cell{X: 0, Y: 0}, Cell{X: 3, Y: -2}); d != 3 {
		t.Fatalf("Chebyshev: got %d want 3", d)
	}
	if d := Euclidean(Cell{X: 0, Y: 0}, Cell{X: 3, Y: 4}); d != 5 {
		t.Fatalf("Euclidean: got %v want 5", d)
	}
}

func TestClusteredPlacementStaysInBounds(t *testing.T) {
	g := NewGrid(30, 20)
	centers := PlaceZoneCenters(g, 4, 7)
	if len(centers) != 4 {
		t.Fatalf("centers: got %d want 4", len(centers))
	}
	seen := make(map[Cell]bool)
	for _, c := range centers {
		if seen[c] {
			t.Fatalf("duplicate center %v", c)
		}
		seen[c] = true
	}

	p := NewPlacer(g, rand.New(rand.NewSource(1)), PlacementClustered, 7, centers)
	for i := 0; i < 500; i++ {
		c := p.Cell(i % 4)
		if !g.InBounds(c) {
			t.Fatalf("placed out of bounds: %v", c)
		}
	}
}

func TestZoneCentersOnTinyGrid(t *testing.T) {
	g := NewGrid(2, 1)
	centers := PlaceZoneCenters(g, 5, 3)
	if len(centers) != 5 {
		t.Fatalf("centers: got %d want 5", len(centers))
	}
}

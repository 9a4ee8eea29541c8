package world

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrOutOfBounds is returned when a cell lies outside the grid.
var ErrOutOfBounds = errors.New("cell out of bounds")

// Grid is a dense, non-wrapping 2-D field. Each cell holds any number of
// occupant IDs in insertion order; the grid also tracks each occupant's cell.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	cells [][]uint64      // row-major, index y*Width+x
	pos   map[uint64]Cell // occupant → cell
}

// NewGrid creates an empty grid.
func NewGrid(width, height int) *Grid {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Grid{
		Width:  width,
		Height: height,
		cells:  make([][]uint64, width*height),
		pos:    make(map[uint64]Cell),
	}
}

// InBounds returns true if the cell lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.Width && c.Y >= 0 && c.Y < g.Height
}

func (g *Grid) index(c Cell) int {
	return c.Y*g.Width + c.X
}

// Place puts an occupant on a cell. Placing an ID that is already on the grid moves it.
func (g *Grid) Place(id uint64, c Cell) error {
	if !g.InBounds(c) {
		return fmt.Errorf("place %d at %v: %w", id, c, ErrOutOfBounds)
	}
	if _, ok := g.pos[id]; ok {
		g.Remove(id)
	}
	i := g.index(c)
	g.cells[i] = append(g.cells[i], id)
	g.pos[id] = c
	return nil
}

// Remove takes an occupant off the grid. Returns false if it was not placed.
func (g *Grid) Remove(id uint64) bool {
	c, ok := g.pos[id]
	if !ok {
		return false
	}
	i := g.index(c)
	bucket := g.cells[i]
	for k, v := range bucket {
		if v == id {
			g.cells[i] = append(bucket[:k], bucket[k+1:]...)
			break
		}
	}
	delete(g.pos, id)
	return true
}

// Move relocates an occupant to c.
func (g *Grid) Move(id uint64, c Cell) error {
	if _, ok := g.pos[id]; !ok {
		return fmt.Errorf("move %d: not on grid", id)
	}
	return g.Place(id, c)
}

// Position returns an occupant's cell.
func (g *Grid) Position(id uint64) (Cell, bool) {
	c, ok := g.pos[id]
	return c, ok
}

// At returns the occupants of a cell. The slice must not be modified.
func (g *Grid) At(c Cell) []uint64 {
	if !g.InBounds(c) {
		return nil
	}
	return g.cells[g.index(c)]
}

// Len returns the number of occupants on the grid.
func (g *Grid) Len() int {
	return len(g.pos)
}

// Neighborhood returns all in-bounds cells within Chebyshev radius r of c,
// ordered by x then y. The center is included only when includeCenter is set.
func (g *Grid) Neighborhood(c Cell, r int, includeCenter bool) []Cell {
	if r < 0 {
		return nil
	}
	out := make([]Cell, 0, (2*r+1)*(2*r+1))
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			if dx == 0 && dy == 0 && !includeCenter {
				continue
			}
			n := Cell{X: c.X + dx, Y: c.Y + dy}
			if g.InBounds(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// Adjacent returns the in-bounds Moore neighbors of c (radius 1, no center).
func (g *Grid) Adjacent(c Cell) []Cell {
	out := make([]Cell, 0, len(MooreDirections))
	for _, d := range MooreDirections {
		n := c.Add(d)
		if g.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// Neighbors returns the occupants of every cell in the neighborhood of c.
func (g *Grid) Neighbors(c Cell, r int, includeCenter bool) []uint64 {
	var out []uint64
	for _, n := range g.Neighborhood(c, r, includeCenter) {
		out = append(out, g.cells[g.index(n)]...)
	}
	return out
}

// RandomCell returns a uniformly random in-bounds cell.
func (g *Grid) RandomCell(rng *rand.Rand) Cell {
	return Cell{X: rng.Intn(g.Width), Y: rng.Intn(g.Height)}
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, occupants=%d)", g.Width, g.Height, g.Len())
}

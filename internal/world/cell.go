// Package world provides the bounded 2-D grid, cell geometry, and household placement.
// The grid does not wrap: cells outside [0,W)×[0,H) do not exist.
package world

import "math"

// Cell is a grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MooreDirections defines the eight neighbor offsets.
var MooreDirections = [8]Cell{
	{X: -1, Y: -1},
	{X: -1, Y: 0},
	{X: -1, Y: 1},
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: 1, Y: -1},
	{X: 1, Y: 0},
	{X: 1, Y: 1},
}

// Add returns c offset by d.
func (c Cell) Add(d Cell) Cell {
	return Cell{X: c.X + d.X, Y: c.Y + d.Y}
}

// Distance returns the Chebyshev (king-move) distance between two cells.
func Distance(a, b Cell) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// Euclidean returns the straight-line distance between two cells.
func Euclidean(a, b Cell) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

package world

import (
	"math/rand"
	"sort"
)

// PlaceZoneCenters picks n well-separated centers for clustered placement.
// Candidate cells are ranked by placement density; centers closer than the
// minimum spacing are skipped, and the spacing relaxes until n are found.
func PlaceZoneCenters(g *Grid, n int, seed int64) []Cell {
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed + 200))
	field := NewPlacementField(seed)

	type scored struct {
		cell  Cell
		score float64
	}
	candidates := make([]scored, 0, g.Width*g.Height)
	for x := 0; x < g.Width; x++ {
		for y := 0; y < g.Height; y++ {
			c := Cell{X: x, Y: y}
			// Small jitter breaks ties between equal-density cells.
			candidates = append(candidates, scored{c, field.Density(c) + rng.Float64()*0.01})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	minDist := max(g.Width, g.Height) / 3
	var centers []Cell
	for len(centers) < n {
		for _, c := range candidates {
			if len(centers) >= n {
				break
			}
			if tooClose(c.cell, centers, minDist) {
				continue
			}
			centers = append(centers, c.cell)
		}
		if minDist == 0 {
			// Every cell is taken; reuse the best ones.
			for len(centers) < n {
				centers = append(centers, candidates[len(centers)%len(candidates)].cell)
			}
		}
		minDist /= 2
	}
	return centers
}

func tooClose(c Cell, existing []Cell, minDist int) bool {
	for _, e := range existing {
		if e == c || Distance(c, e) < minDist {
			return true
		}
	}
	return false
}

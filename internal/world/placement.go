// Household placement. Uniform placement matches a plain random cell per household;
// clustered placement draws households around their zone center, weighted by a
// layered simplex density field so neighborhoods come out uneven.

package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Placement modes.
const (
	PlacementUniform   = "uniform"
	PlacementClustered = "clustered"
)

// PlacementField is a normalized [0,1] density over the grid.
type PlacementField struct {
	noise     opensimplex.Noise
	octaves   int
	frequency float64
}

// NewPlacementField creates a density field from a seed.
func NewPlacementField(seed int64) *PlacementField {
	return &PlacementField{
		noise:     opensimplex.NewNormalized(seed + 1),
		octaves:   3,
		frequency: 0.08,
	}
}

// Density returns the field value at a cell.
func (f *PlacementField) Density(c Cell) float64 {
	return octaveNoise(f.noise, float64(c.X), float64(c.Y), f.octaves, f.frequency, 0.5)
}

// Placer picks cells for new occupants.
type Placer struct {
	grid    *Grid
	rng     *rand.Rand
	mode    string
	field   *PlacementField
	centers []Cell
	spread  float64
}

// NewPlacer creates a placer. Clustered mode needs one center per zone;
// any other mode places uniformly.
func NewPlacer(g *Grid, rng *rand.Rand, mode string, seed int64, centers []Cell) *Placer {
	p := &Placer{
		grid:    g,
		rng:     rng,
		mode:    mode,
		centers: centers,
		spread:  math.Max(2, float64(min(g.Width, g.Height))/6),
	}
	if mode == PlacementClustered && len(centers) > 0 {
		p.field = NewPlacementField(seed)
	}
	return p
}

// Cell returns a cell for an occupant belonging to the given zone index.
func (p *Placer) Cell(zone int) Cell {
	if p.field == nil || zone < 0 || zone >= len(p.centers) {
		return p.grid.RandomCell(p.rng)
	}
	center := p.centers[zone]

	// Rejection sampling: Gaussian offset around the center, accepted with
	// probability equal to the local density.
	for tries := 0; tries < 16; tries++ {
		c := Cell{
			X: center.X + int(math.Round(p.rng.NormFloat64()*p.spread)),
			Y: center.Y + int(math.Round(p.rng.NormFloat64()*p.spread)),
		}
		if !p.grid.InBounds(c) {
			continue
		}
		if p.rng.Float64() < p.field.Density(c) {
			return c
		}
	}
	return center
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

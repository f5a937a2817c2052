// Package course produces the obstacle layout a race is run on.
package course

import "fmt"

// Kind identifies the obstacle type rendered by clients.
type Kind string

const KindHedge Kind = "hedge"

// Obstacle is one course marker, measured from the start line.
type Obstacle struct {
	ID       string `json:"id"`
	Distance int    `json:"distance"`
	Kind     Kind   `json:"type"`
}

// Generator supplies a fresh ordered layout each time it is asked.
// Sessions call it once at creation and again on every reset.
type Generator interface {
	Generate() []Obstacle
}

// Hedges places one hedge every Interval units, strictly between the start
// and the finish line at Length.
type Hedges struct {
	Length   int
	Interval int
}

// NewHedges returns a hedge generator for a course of the given length.
func NewHedges(length, interval int) Hedges {
	return Hedges{Length: length, Interval: interval}
}

// Generate lays out the hedges in increasing distance order. A non-positive
// length or interval yields an empty course.
func (h Hedges) Generate() []Obstacle {
	if h.Length <= 0 || h.Interval <= 0 {
		return []Obstacle{}
	}

	obstacles := make([]Obstacle, 0, h.Length/h.Interval)
	for dist := h.Interval; dist < h.Length; dist += h.Interval {
		obstacles = append(obstacles, Obstacle{
			ID:       fmt.Sprintf("hedge_%d", dist),
			Distance: dist,
			Kind:     KindHedge,
		})
	}
	return obstacles
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func() []Obstacle

func (f GeneratorFunc) Generate() []Obstacle { return f() }

package anim

import (
	"math"
	"time"
)

// ConstellationInterval is how often the diagram is redrawn from scratch.
const ConstellationInterval = 5 * time.Second

// Point is a position in the constellation's pixel space.
type Point struct{ X, Y float64 }

// Edge joins two points by index.
type Edge struct{ A, B int }

var (
	constellationPoints = []Point{
		{20, 70}, {70, 20}, {130, 55}, {180, 15}, {220, 60}, {170, 80}, {100, 75},
	}
	constellationEdges = []Edge{
		{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 2},
	}
)

// Segment is a line positioned at its start point and rotated into place.
type Segment struct {
	Left, Top float64
	Length    float64
	Angle     float64 // degrees
	Delay     time.Duration
}

// Dot is a 4px star centered on a point.
type Dot struct {
	Left, Top float64
	Delay     time.Duration
}

// Scene is one rendering of the constellation.
type Scene struct {
	Segments []Segment
	Dots     []Dot
}

// Layout computes the constellation. Lines reveal 100ms apart, stars 80ms
// apart.
func Layout() Scene {
	var sc Scene
	for i, e := range constellationEdges {
		p1, p2 := constellationPoints[e.A], constellationPoints[e.B]
		dx, dy := p2.X-p1.X, p2.Y-p1.Y
		sc.Segments = append(sc.Segments, Segment{
			Left:   p1.X,
			Top:    p1.Y,
			Length: math.Hypot(dx, dy),
			Angle:  math.Atan2(dy, dx) * 180 / math.Pi,
			Delay:  time.Duration(i) * 100 * time.Millisecond,
		})
	}
	for i, p := range constellationPoints {
		sc.Dots = append(sc.Dots, Dot{
			Left:  p.X - 2,
			Top:   p.Y - 2,
			Delay: time.Duration(i) * 80 * time.Millisecond,
		})
	}
	return sc
}

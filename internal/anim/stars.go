// Package anim computes the page's decorative background: a twinkling star
// field and a small constellation diagram. Nothing here touches memories.
package anim

import (
	"math"
	"math/rand/v2"
	"time"
)

// StarCount is the size of every star field.
const StarCount = 160

// FrameRate is the redraw rate twinkle periods are derived from.
const FrameRate = 60

// Star is one particle. Phase advances by Speed every frame.
type Star struct {
	X, Y  float64
	R     float64
	O     float64
	Speed float64
	Phase float64
}

// Opacity is the star's current brightness, o·(0.6+0.4·sin(phase)).
func (s Star) Opacity() float64 {
	return s.O * (0.6 + 0.4*math.Sin(s.Phase))
}

// Twinkle is the wall-clock length of one full brightness cycle.
func (s Star) Twinkle() time.Duration {
	frames := 2 * math.Pi / s.Speed
	return time.Duration(frames / FrameRate * float64(time.Second))
}

// StarField is a viewport-sized set of stars. It is not safe for concurrent
// use; each page render builds its own.
type StarField struct {
	width, height float64
	rnd           *rand.Rand
	stars         []Star
}

// NewStarField seeds a field for a w×h viewport. A nil src uses a random seed.
func NewStarField(w, h float64, src rand.Source) *StarField {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	f := &StarField{rnd: rand.New(src)}
	f.Resize(w, h)
	return f
}

// Resize discards the current stars and scatters a new set over w×h.
func (f *StarField) Resize(w, h float64) {
	f.width, f.height = w, h
	f.stars = make([]Star, StarCount)
	for i := range f.stars {
		f.stars[i] = Star{
			X:     f.rnd.Float64() * w,
			Y:     f.rnd.Float64() * h,
			R:     f.rnd.Float64()*1.2 + 0.2,
			O:     f.rnd.Float64()*0.6 + 0.1,
			Speed: f.rnd.Float64()*0.003 + 0.001,
			Phase: f.rnd.Float64() * 2 * math.Pi,
		}
	}
}

// Step advances every star by one frame.
func (f *StarField) Step() {
	for i := range f.stars {
		f.stars[i].Phase += f.stars[i].Speed
	}
}

// Opacity returns the brightness of star i.
func (f *StarField) Opacity(i int) float64 {
	return f.stars[i].Opacity()
}

// Stars returns a copy of the current particles.
func (f *StarField) Stars() []Star {
	out := make([]Star, len(f.stars))
	copy(out, f.stars)
	return out
}

func (f *StarField) Size() (w, h float64) {
	return f.width, f.height
}

package web

import (
	"html/template"
	"math"
	"strconv"
	"strings"

	"github.com/kalambet/capsule/internal/anim"
	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/notify"
	"github.com/kalambet/capsule/internal/share"
)

// Fixed page texts.
const (
	EmptyGridText     = "No memories yet — add your first one above"
	NoMetaText        = "A moment in time"
	NoDescriptionText = "No description added."
	ReadingText       = "Reading your memory…"
	DemoLoadedText    = "✓ Demo memories loaded"
)

// Card is one grid entry.
type Card struct {
	ID    int64
	Title string
	// Meta is "date · place"; empty renders as a non-breaking space.
	Meta  string
	Mood  string
	Photo template.URL
}

// Grid is the rendered collection.
type Grid struct {
	Cards []Card
	Count int
}

// RenderGrid projects records into cards, in order. Photo paths are
// resolved against imageBase.
func RenderGrid(records []memory.Record, imageBase string) Grid {
	g := Grid{Cards: make([]Card, 0, len(records)), Count: len(records)}
	for _, r := range records {
		g.Cards = append(g.Cards, Card{
			ID:    r.ID,
			Title: r.Title,
			Meta:  r.Meta(),
			Mood:  string(r.Mood),
			Photo: photoSrc(r.Image, imageBase),
		})
	}
	return g
}

// InsightBlock is one rendered insight with its reveal delay in seconds.
type InsightBlock struct {
	insight.Item
	Delay string
}

// Insights is the discovery result as shown on the page.
type Insights struct {
	Blocks     []InsightBlock
	BigPicture string
	Message    string
}

// RenderInsights staggers the blocks 100ms apart, starting at 100ms.
func RenderInsights(set insight.Set) *Insights {
	out := &Insights{BigPicture: set.BigPicture, Message: set.Message}
	for i, it := range set.Insights {
		out.Blocks = append(out.Blocks, InsightBlock{Item: it, Delay: seconds(float64(i+1) * 0.1)})
	}
	return out
}

// Page is everything the main template needs.
type Page struct {
	Grid        Grid
	Loading     bool
	Moods       []string
	Overlay     *OverlayView
	Insights    *Insights
	Toasts      []notify.Toast
	Share       share.Links
	Stars       StarsView
	Scene       SceneView
	DemoLoaded  bool
	LLMEnabled  bool
	EventsPath  string
	SafetyNetMS int64
	RedrawMS    int64
}

// StarsView is the star field as SVG circles.
type StarsView struct {
	Width, Height float64
	Stars         []StarView
}

type StarView struct {
	X, Y, R       string
	Min, Max, Now string
	Twinkle       string
	Begin         string
}

// RenderStars turns the field into SVG attributes. Each star animates its
// opacity between 0.2·o and o over one twinkle period, starting from its
// current phase.
func RenderStars(f *anim.StarField) StarsView {
	w, h := f.Size()
	v := StarsView{Width: w, Height: h}
	for _, s := range f.Stars() {
		period := s.Twinkle()
		// Offset so the animation is already at s.Phase when the page loads.
		begin := -period.Seconds() * (s.Phase / (2 * math.Pi))
		v.Stars = append(v.Stars, StarView{
			X:       num(s.X),
			Y:       num(s.Y),
			R:       num(s.R),
			Min:     num(s.O * 0.2),
			Max:     num(s.O),
			Now:     num(s.Opacity()),
			Twinkle: seconds(period.Seconds()),
			Begin:   seconds(begin),
		})
	}
	return v
}

// SceneView is the constellation as positioned elements.
type SceneView struct {
	Lines []LineView
	Dots  []DotView
}

type LineView struct {
	Left, Top, Width, Angle, Delay string
}

type DotView struct {
	Left, Top, Delay string
}

func RenderScene(sc anim.Scene) SceneView {
	var v SceneView
	for _, s := range sc.Segments {
		v.Lines = append(v.Lines, LineView{
			Left:  num(s.Left),
			Top:   num(s.Top),
			Width: num(s.Length),
			Angle: num(s.Angle),
			Delay: seconds(s.Delay.Seconds()),
		})
	}
	for _, d := range sc.Dots {
		v.Dots = append(v.Dots, DotView{
			Left:  num(d.Left),
			Top:   num(d.Top),
			Delay: seconds(d.Delay.Seconds()),
		})
	}
	return v
}

func num(f float64) string {
	s := strings.TrimRight(strings.TrimRight(strconv.FormatFloat(f, 'f', 3, 64), "0"), ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	return s
}

func seconds(f float64) string {
	return num(f) + "s"
}

// photoSrc marks our own photo sources as safe URLs; html/template would
// otherwise reject data URIs.
func photoSrc(img memory.Image, base string) template.URL {
	return template.URL(img.Src(base))
}

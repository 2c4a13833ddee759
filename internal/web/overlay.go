package web

import (
	"html/template"

	"github.com/kalambet/capsule/internal/memory"
)

// OverlayView is the detail overlay's content.
type OverlayView struct {
	ID    int64
	Title string
	Meta  string
	Desc  string
	Mood  string
	Photo template.URL
	// Reflection is filled in once the per-memory insight resolves; until
	// then the overlay shows a loading indicator.
	Reflection string
}

// Overlay is the single detail view. It is either closed or open on one
// memory; opening another memory replaces the content in place.
type Overlay struct {
	view *OverlayView
}

// Open shows rec, replacing whatever was open.
func (o *Overlay) Open(rec memory.Record, imageBase string) *OverlayView {
	v := &OverlayView{
		ID:    rec.ID,
		Title: rec.Title,
		Meta:  rec.Meta(),
		Desc:  rec.Desc,
		Mood:  string(rec.Mood),
		Photo: photoSrc(rec.Image, imageBase),
	}
	if v.Meta == "" {
		v.Meta = NoMetaText
	}
	if v.Desc == "" {
		v.Desc = NoDescriptionText
	}
	o.view = v
	return v
}

// Resolve records the reflection for the open memory. It is ignored when
// the overlay has since closed or moved to another memory.
func (o *Overlay) Resolve(id int64, text string) bool {
	if o.view == nil || o.view.ID != id {
		return false
	}
	o.view.Reflection = text
	return true
}

func (o *Overlay) Close() {
	o.view = nil
}

func (o *Overlay) IsOpen() bool {
	return o.view != nil
}

// View returns the open content, or nil when closed.
func (o *Overlay) View() *OverlayView {
	return o.view
}

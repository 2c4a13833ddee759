package memory

import (
	"errors"
	"strings"
)

// UntitledTitle is used when a memory is saved with only a description.
const UntitledTitle = "Untitled memory"

var (
	// ErrEmptyMemory is returned when both title and description are blank.
	ErrEmptyMemory = errors.New("Add a title or description")
	// ErrInvalidMood is returned for a mood outside the fixed set.
	ErrInvalidMood = errors.New("unknown mood")
)

// Record is a single journal entry.
type Record struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Desc  string `json:"desc"`
	Date  string `json:"date"`
	Place string `json:"place"`
	Mood  Mood   `json:"mood"`
	Image Image  `json:"image"`
}

// Meta returns the "date · place" line shown on cards.
func (r Record) Meta() string {
	return MetaLine(r.Date, r.Place)
}

// MetaLine joins the non-blank values with a middle dot.
func MetaLine(date, place string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{date, place} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " · ")
}

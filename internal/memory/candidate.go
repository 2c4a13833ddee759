package memory

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Candidate is an unsaved memory as submitted by a form or API client.
type Candidate struct {
	Title string `json:"title" validate:"required_without=Desc"`
	Desc  string `json:"desc"`
	Date  string `json:"date"`
	Place string `json:"place"`
	Mood  string `json:"mood" validate:"omitempty,mood"`
	Image Image  `json:"image"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("mood", func(fl validator.FieldLevel) bool {
		return Mood(fl.Field().String()).Valid()
	})
	return v
}

// Normalize trims all text fields in place.
func (c *Candidate) Normalize() {
	c.Title = strings.TrimSpace(c.Title)
	c.Desc = strings.TrimSpace(c.Desc)
	c.Date = strings.TrimSpace(c.Date)
	c.Place = strings.TrimSpace(c.Place)
	c.Mood = strings.TrimSpace(c.Mood)
}

// Validate normalizes c and checks that it may be stored.
func (c *Candidate) Validate() error {
	c.Normalize()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Mood" {
				return ErrInvalidMood
			}
		}
		return ErrEmptyMemory
	}
	return err
}

// Record applies defaults and assigns id. Call Validate first.
func (c Candidate) Record(id int64) Record {
	title := c.Title
	if title == "" {
		title = UntitledTitle
	}
	mood := Mood(c.Mood)
	if mood == "" {
		mood = DefaultMood
	}
	return Record{
		ID:    id,
		Title: title,
		Desc:  c.Desc,
		Date:  c.Date,
		Place: c.Place,
		Mood:  mood,
		Image: c.Image,
	}
}

// CandidateFrom turns an existing record back into a submission, used when
// replaying records into another backend.
func CandidateFrom(r Record) Candidate {
	return Candidate{
		Title: r.Title,
		Desc:  r.Desc,
		Date:  r.Date,
		Place: r.Place,
		Mood:  string(r.Mood),
		Image: r.Image,
	}
}

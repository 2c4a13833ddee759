package web

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/store"
)

//go:embed demo.yaml
var demoYAML []byte

type demoFile struct {
	Memories []struct {
		Title string `yaml:"title"`
		Desc  string `yaml:"desc"`
		Date  string `yaml:"date"`
		Place string `yaml:"place"`
		Mood  string `yaml:"mood"`
	} `yaml:"memories"`
}

// DemoMemories returns the sample memories in load order.
func DemoMemories() ([]memory.Candidate, error) {
	var f demoFile
	if err := yaml.Unmarshal(demoYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing demo data: %w", err)
	}
	out := make([]memory.Candidate, 0, len(f.Memories))
	for _, m := range f.Memories {
		out = append(out, memory.Candidate{
			Title: m.Title,
			Desc:  m.Desc,
			Date:  m.Date,
			Place: m.Place,
			Mood:  m.Mood,
		})
	}
	return out, nil
}

// LoadDemo adds every sample memory through b and returns how many were
// stored. It stops at the first failure.
func LoadDemo(ctx context.Context, b store.Backend) (int, error) {
	demo, err := DemoMemories()
	if err != nil {
		return 0, err
	}
	for i, c := range demo {
		if _, err := b.Add(ctx, c); err != nil {
			return i, fmt.Errorf("adding demo memory %q: %w", c.Title, err)
		}
	}
	return len(demo), nil
}

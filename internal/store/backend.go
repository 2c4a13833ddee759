package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
)

// Backend is where memories live and where discovery requests go. The
// page's Store talks to exactly one Backend chosen at startup.
type Backend interface {
	List(ctx context.Context) ([]memory.Record, error)
	// Add stores a validated candidate. A backend may return a zero Record
	// when the service does not echo the stored value.
	Add(ctx context.Context, c memory.Candidate) (memory.Record, error)
	Delete(ctx context.Context, id int64) error
	// Analyze returns an insight Set for records.
	Analyze(ctx context.Context, records []memory.Record) (insight.Set, error)
	// Reflect returns a short reflection on one record.
	Reflect(ctx context.Context, rec memory.Record) (string, error)
}

// Discoverer is the server-side half of discovery. *insight.Analyzer
// satisfies it.
type Discoverer interface {
	Discover(ctx context.Context, records []memory.Record) (insight.Set, insight.Outcome)
	Reflect(ctx context.Context, rec memory.Record) (string, error)
}

var (
	// ErrNotFound is returned when a record id is unknown to the backend.
	ErrNotFound = errors.New("memory not found")
	// ErrNoInsight is returned when a reflection request yields no text.
	ErrNoInsight = errors.New("no insight returned")
	// ErrTooFew is returned by Store.Discover when fewer than MinForDiscovery
	// records are present.
	ErrTooFew = errors.New("Add at least 2 memories first")
)

// APIError is a non-2xx reply from the memory service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

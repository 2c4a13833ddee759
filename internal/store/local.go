package store

import (
	"context"
	"sync"
	"time"

	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
)

// InMemoryBackend keeps records in process memory. It is authoritative for
// its own collection; discovery goes through a Discoverer that holds the
// model credential, never through the page.
type InMemoryBackend struct {
	mu      sync.Mutex
	records []memory.Record
	lastID  int64
	now     func() time.Time

	disc Discoverer
}

// NewInMemoryBackend creates an empty backend. disc may be nil, in which
// case Analyze answers with insight.Fallback and Reflect fails.
func NewInMemoryBackend(disc Discoverer) *InMemoryBackend {
	return &InMemoryBackend{now: time.Now, disc: disc}
}

func (b *InMemoryBackend) List(context.Context) ([]memory.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]memory.Record, len(b.records))
	copy(out, b.records)
	return out, nil
}

// Add assigns a millisecond-timestamp id, bumped past the previous id so
// two adds in the same millisecond stay unique.
func (b *InMemoryBackend) Add(_ context.Context, c memory.Candidate) (memory.Record, error) {
	if err := c.Validate(); err != nil {
		return memory.Record{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.now().UnixMilli()
	if id <= b.lastID {
		id = b.lastID + 1
	}
	b.lastID = id

	rec := c.Record(id)
	b.records = append(b.records, rec)
	return rec, nil
}

// Delete filters id out of the collection. Unknown ids are a no-op.
func (b *InMemoryBackend) Delete(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.records[:0]
	for _, r := range b.records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	b.records = kept
	return nil
}

func (b *InMemoryBackend) Analyze(ctx context.Context, records []memory.Record) (insight.Set, error) {
	if b.disc == nil {
		return insight.Fallback(), nil
	}
	set, _ := b.disc.Discover(ctx, records)
	return set, nil
}

func (b *InMemoryBackend) Reflect(ctx context.Context, rec memory.Record) (string, error) {
	if b.disc == nil {
		return "", insight.ErrUnavailable
	}
	return b.disc.Reflect(ctx, rec)
}

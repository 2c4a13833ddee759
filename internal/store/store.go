package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/notify"
)

// DefaultLoadTimeout is the cold-start grace period for a reload.
const DefaultLoadTimeout = 25 * time.Second

// User-facing notification texts.
const (
	MsgEmpty          = "Add a title or description ✦"
	MsgInvalidMood    = "Pick one of the listed moods ✦"
	MsgSaveFailed     = "Failed to save memory ✦"
	MsgDeleteFailed   = "Failed to delete ✦"
	MsgTooFew         = "Add at least 2 memories first ✦"
	MsgAnalysisFailed = "Analysis failed ✦"
	MsgWakingUp       = "Server may be waking up (free tier). Refresh in a moment if the page is empty."
	MsgLoadFailed     = "Could not reach the memory service ✦"
)

// Snapshot is the store state handed to subscribers.
type Snapshot struct {
	Records []memory.Record
	// Loaded is false until the first reload finishes, successfully or not.
	Loaded bool
}

// Store is the page's view of the memory collection. It is constructed once
// at startup around a Backend and publishes a Snapshot after every change.
//
// Reloads may overlap (a reload after add racing a manual refresh). Each
// reload takes a generation number when it starts and its result is applied
// only if no later-started reload has already been applied, so the list
// always reflects the most recently started fetch that completed.
type Store struct {
	backend Backend
	notes   *notify.Notifier
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	records []memory.Record
	loaded  bool
	started uint64
	applied uint64

	// first collapses concurrent first loads into one backend fetch.
	first singleflight.Group

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLoadTimeout bounds each reload. Non-positive values are ignored.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(backend Backend, notes *notify.Notifier, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		notes:   notes,
		timeout: DefaultLoadTimeout,
		logger:  slog.Default(),
		records: []memory.Record{},
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend the store was built with.
func (s *Store) Backend() Backend {
	return s.backend
}

// Notifier returns the notifier the store reports to.
func (s *Store) Notifier() *notify.Notifier {
	return s.notes
}

// Add validates c and hands it to the backend. A validation failure
// produces an info notification and never reaches the backend. A backend
// failure produces an error notification and leaves the list unchanged.
func (s *Store) Add(ctx context.Context, c memory.Candidate) (memory.Record, error) {
	if err := c.Validate(); err != nil {
		if errors.Is(err, memory.ErrInvalidMood) {
			s.notes.Info(MsgInvalidMood)
		} else {
			s.notes.Info(MsgEmpty)
		}
		return memory.Record{}, err
	}

	rec, err := s.backend.Add(ctx, c)
	if err != nil {
		s.logger.Warn("adding memory failed", "error", err)
		s.notes.Error(MsgSaveFailed)
		return memory.Record{}, fmt.Errorf("adding memory: %w", err)
	}

	if err := s.Reload(ctx); err != nil {
		s.logger.Debug("reload after add", "error", err)
	}
	return rec, nil
}

// Remove deletes id through the backend and reloads.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		s.logger.Warn("deleting memory failed", "id", id, "error", err)
		s.notes.Error(MsgDeleteFailed)
		return fmt.Errorf("deleting memory %d: %w", id, err)
	}

	if err := s.Reload(ctx); err != nil {
		s.logger.Debug("reload after delete", "error", err)
	}
	return nil
}

type listResult struct {
	records []memory.Record
	err     error
}

// Reload replaces the list with the backend's. It gives up after the load
// timeout; a timeout or fetch failure leaves an empty list plus one warning
// notification rather than stale data. Cancelling ctx abandons the reload
// without touching state.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.started++
	gen := s.started
	s.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan listResult, 1)
	go func() {
		records, err := s.backend.List(lctx)
		ch <- listResult{records: records, err: err}
	}()

	var res listResult
	select {
	case res = <-ch:
	case <-lctx.Done():
		res.err = lctx.Err()
	}

	if res.err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	timedOut := res.err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded)

	s.mu.Lock()
	if gen <= s.applied {
		s.mu.Unlock()
		return nil
	}
	s.applied = gen
	s.loaded = true
	if res.err != nil {
		s.records = []memory.Record{}
	} else {
		s.records = nonNil(res.records)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	switch {
	case timedOut:
		s.logger.Warn("memory reload timed out", "timeout", s.timeout)
		s.notes.Warn(MsgWakingUp)
	case res.err != nil:
		s.logger.Warn("memory reload failed", "error", res.err)
		s.notes.Warn(MsgLoadFailed)
	}

	s.publish(snap)
	if res.err != nil {
		return fmt.Errorf("reloading memories: %w", res.err)
	}
	return nil
}

// EnsureLoaded performs the first load unless one has finished. Callers
// arriving while a first load is in flight wait for it instead of starting
// another, so a cold backend yields a single waking-up notification.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	for {
		if s.Loaded() {
			return nil
		}
		ch := s.first.DoChan("load", func() (any, error) {
			if s.Loaded() {
				return nil, nil
			}
			return nil, s.Reload(ctx)
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-ch:
			// The caller that started the load went away; take it over.
			if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
				continue
			}
			return res.Err
		}
	}
}

// List returns a copy of the records in display order.
func (s *Store) List() []memory.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]memory.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record with id from the current list.
func (s *Store) Get(id int64) (memory.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return memory.Record{}, false
}

// Loaded reports whether a reload has completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Reset empties the local list and returns to the not-loaded state.
// Reloads already in flight are discarded when they finish.
func (s *Store) Reset() {
	s.mu.Lock()
	s.records = []memory.Record{}
	s.loaded = false
	s.applied = s.started
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Subscribe registers fn for every published Snapshot. fn runs on the
// goroutine that changed the store and must not block. The returned
// function unregisters it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) publish(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	records := make([]memory.Record, len(s.records))
	copy(records, s.records)
	return Snapshot{Records: records, Loaded: s.loaded}
}

func nonNil(records []memory.Record) []memory.Record {
	if records == nil {
		return []memory.Record{}
	}
	return records
}

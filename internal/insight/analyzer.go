package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sony/gobreaker"

	"github.com/kalambet/capsule/internal/memory"
)

// Outcome labels how a discovery request was answered.
type Outcome string

const (
	OutcomeModel    Outcome = "model"
	OutcomeCached   Outcome = "cached"
	OutcomeFallback Outcome = "fallback"
)

// Observer receives one call per Discover or Reflect.
type Observer interface {
	ObserveInsight(kind string, outcome Outcome, took time.Duration)
}

// Analyzer turns memories into insights through a Chatter. Repeated
// requests over the same records are answered from a cache, and a run of
// upstream failures opens a circuit breaker so later calls fall back
// immediately instead of waiting on a dead endpoint.
type Analyzer struct {
	chat     Chatter
	breaker  *gobreaker.CircuitBreaker
	cache    *ristretto.Cache
	observer Observer
	logger   *slog.Logger
}

// AnalyzerOption customizes an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithObserver reports outcomes to o.
func WithObserver(o Observer) AnalyzerOption {
	return func(a *Analyzer) { a.observer = o }
}

// WithLogger sets the logger used for upstream failures.
func WithLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer creates an Analyzer. A nil chat is allowed: Discover then
// always answers with Fallback and Reflect with ErrUnavailable.
func NewAnalyzer(chat Chatter, opts ...AnalyzerOption) (*Analyzer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     4 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating insight cache: %w", err)
	}

	a := &Analyzer{
		chat:   chat,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "insight",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("insight breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return a, nil
}

// Available reports whether a language model is configured.
func (a *Analyzer) Available() bool {
	return a.chat != nil
}

// Close releases the cache.
func (a *Analyzer) Close() {
	a.cache.Close()
}

// Discover returns an insight Set for records. It never fails: any upstream
// error or malformed reply yields Fallback.
func (a *Analyzer) Discover(ctx context.Context, records []memory.Record) (Set, Outcome) {
	start := time.Now()
	set, outcome := a.discover(ctx, records)
	a.observe("discover", outcome, time.Since(start))
	return set, outcome
}

func (a *Analyzer) discover(ctx context.Context, records []memory.Record) (Set, Outcome) {
	if a.chat == nil {
		return Fallback(), OutcomeFallback
	}

	key := "set:" + fingerprint(records...)
	if v, ok := a.cache.Get(key); ok {
		if set, ok := v.(Set); ok {
			return set, OutcomeCached
		}
	}

	text, err := a.call(ctx, SystemPrompt, BuildPatternPrompt(records))
	if err != nil {
		a.logger.Warn("pattern discovery failed, using fallback", "error", err)
		return Fallback(), OutcomeFallback
	}
	set, err := Parse(text)
	if err != nil {
		a.logger.Warn("pattern discovery reply unusable, using fallback", "error", err)
		return Fallback(), OutcomeFallback
	}

	a.cache.Set(key, set, int64(len(text)))
	return set, OutcomeModel
}

// Reflect returns a short model-written reflection on a single memory.
// Callers substitute MoodFallback on any error.
func (a *Analyzer) Reflect(ctx context.Context, rec memory.Record) (string, error) {
	start := time.Now()
	text, outcome, err := a.reflect(ctx, rec)
	a.observe("reflect", outcome, time.Since(start))
	return text, err
}

func (a *Analyzer) reflect(ctx context.Context, rec memory.Record) (string, Outcome, error) {
	if a.chat == nil {
		return "", OutcomeFallback, ErrUnavailable
	}

	key := "one:" + fingerprint(rec)
	if v, ok := a.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			return text, OutcomeCached, nil
		}
	}

	text, err := a.call(ctx, ReflectionPrompt, BuildReflectionPrompt(rec))
	if err != nil {
		return "", OutcomeFallback, err
	}
	text = strings.TrimSpace(StripFences(text))
	if text == "" {
		return "", OutcomeFallback, fmt.Errorf("%w: empty reflection", ErrMalformed)
	}

	a.cache.Set(key, text, int64(len(text)))
	return text, OutcomeModel, nil
}

func (a *Analyzer) call(ctx context.Context, system, user string) (string, error) {
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.chat.Chat(ctx, system, user)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("model temporarily disabled: %w", err)
		}
		return "", err
	}
	return out.(string), nil
}

func (a *Analyzer) observe(kind string, outcome Outcome, took time.Duration) {
	if a.observer != nil {
		a.observer.ObserveInsight(kind, outcome, took)
	}
}

// fingerprint hashes the fields the prompts are built from.
func fingerprint(records ...memory.Record) string {
	h := sha256.New()
	for _, r := range records {
		fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s\x00%s\x00%s\x01", r.ID, r.Title, r.Desc, r.Date, r.Place, r.Mood)
	}
	return hex.EncodeToString(h.Sum(nil))
}

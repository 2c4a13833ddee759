package store

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
)

// MinForDiscovery is the smallest collection bulk discovery will analyze.
const MinForDiscovery = 2

// Discover runs bulk pattern discovery over the current list.
//
// With fewer than MinForDiscovery records it notifies and returns ErrTooFew
// without contacting the backend. A client error from the service (for
// example the service holding fewer records than the page) is reported the
// same way. Every other failure, including a malformed reply, yields
// insight.Fallback with a nil error.
func (s *Store) Discover(ctx context.Context) (insight.Set, error) {
	records := s.List()
	if len(records) < MinForDiscovery {
		s.notes.Info(MsgTooFew)
		return insight.Set{}, ErrTooFew
	}

	set, err := s.backend.Analyze(ctx, records)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < http.StatusInternalServerError {
			msg := apiErr.Message
			if msg == "" {
				msg = MsgAnalysisFailed
			}
			s.notes.Info(msg)
			return insight.Set{}, err
		}
		s.logger.Warn("pattern discovery failed, using fallback", "error", err)
		return insight.Fallback(), nil
	}
	if !set.Valid() {
		s.logger.Warn("pattern discovery returned an incomplete set, using fallback")
		return insight.Fallback(), nil
	}
	return set, nil
}

// Reflect returns a reflection on rec and whether it came from the model.
// Any failure selects the canned text for rec's mood.
func (s *Store) Reflect(ctx context.Context, rec memory.Record) (string, bool) {
	text, err := s.backend.Reflect(ctx, rec)
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		if err != nil && !errors.Is(err, insight.ErrUnavailable) {
			s.logger.Debug("reflection failed, using mood fallback", "id", rec.ID, "error", err)
		}
		return insight.MoodFallback(string(rec.Mood)), false
	}
	return text, true
}

package web

import (
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/capsule/internal/anim"
	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/notify"
)

const (
	msgNotFound   = "That memory is gone ✦"
	msgDemoFailed = "Could not load demo memories ✦"
	msgBadPhoto   = "Could not read that photo ✦"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.overlay.Close()
	s.mu.Unlock()

	s.render(w, http.StatusOK, "page", s.page(nil))
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	view := *s.overlay.Open(rec, s.deps.ImageBase)
	s.mu.Unlock()

	s.render(w, http.StatusOK, "page", s.page(&view))
}

// handleReflection resolves the overlay's per-memory insight. It always
// answers with text: the model's reflection or the mood's canned one.
func (s *Server) handleReflection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid memory id", http.StatusBadRequest)
		return
	}
	rec, ok := s.deps.Store.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	text, _ := s.deps.Store.Reflect(r.Context(), rec)

	s.mu.Lock()
	s.overlay.Resolve(rec.ID, text)
	s.mu.Unlock()

	s.render(w, http.StatusOK, "reflection", text)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.log.Debug("parsing memory form", "error", err)
		s.deps.Store.Notifier().Error(msgBadPhoto)
		seeOther(w, r, "/")
		return
	}

	c := memory.Candidate{
		Title: r.FormValue("title"),
		Desc:  r.FormValue("desc"),
		Date:  r.FormValue("date"),
		Place: r.FormValue("place"),
		Mood:  r.FormValue("mood"),
	}
	img, err := formPhoto(r)
	if err != nil {
		s.log.Debug("reading photo", "error", err)
		s.deps.Store.Notifier().Error(msgBadPhoto)
		seeOther(w, r, "/")
		return
	}
	c.Image = img

	// Validation and backend failures are reported as toasts by the store.
	if _, err := s.deps.Store.Add(r.Context(), c); err != nil {
		s.log.Debug("memory not added", "error", err)
	}
	seeOther(w, r, "/")
}

func formPhoto(r *http.Request) (memory.Image, error) {
	f, hdr, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return memory.Image{}, nil
	}
	if err != nil {
		return memory.Image{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return memory.Image{}, err
	}
	if len(data) == 0 {
		return memory.Image{}, nil
	}
	mime := hdr.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return memory.Image{}, errors.New("not an image: " + mime)
	}
	return memory.Embedded(mime, data), nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid memory id", http.StatusBadRequest)
		return
	}

	if err := s.deps.Store.Remove(r.Context(), id); err != nil {
		s.log.Debug("memory not deleted", "id", id, "error", err)
	}

	s.mu.Lock()
	if v := s.overlay.View(); v != nil && v.ID == id {
		s.overlay.Close()
	}
	s.mu.Unlock()

	seeOther(w, r, "/")
}

type gridFragment struct {
	Grid   Grid
	Toasts []notify.Toast
}

// handleGridFragment returns the grid for in-place refresh. Until the first
// load has finished it performs or joins it, bounded by the store's load
// timeout.
func (s *Server) handleGridFragment(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if err := st.EnsureLoaded(r.Context()); err != nil {
		s.log.Debug("initial load", "error", err)
	}
	snap := st.Snapshot()
	s.render(w, http.StatusOK, "grid-fragment", gridFragment{
		Grid:   RenderGrid(snap.Records, s.deps.ImageBase),
		Toasts: st.Notifier().Drain(),
	})
}

// handleStarsFragment renders a fresh star field for the caller's viewport.
func (s *Server) handleStarsFragment(w http.ResponseWriter, r *http.Request) {
	width := dimension(r.URL.Query().Get("w"), defaultViewportW)
	height := dimension(r.URL.Query().Get("h"), defaultViewportH)
	s.render(w, http.StatusOK, "stars", RenderStars(s.starField(width, height)))
}

func dimension(v string, def float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || f > 10000 {
		return def
	}
	return f
}

func (s *Server) starField(w, h float64) *anim.StarField {
	var src rand.Source
	if s.deps.StarSource != nil {
		src = s.deps.StarSource()
	}
	return anim.NewStarField(w, h, src)
}

// handleDiscover runs bulk discovery. The result replaces any previous one
// and the page opens at it.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	set, err := s.deps.Store.Discover(r.Context())
	if err != nil {
		// Too few memories or a rejected request; the store has notified.
		seeOther(w, r, "/")
		return
	}

	s.mu.Lock()
	s.insights = RenderInsights(set)
	s.mu.Unlock()

	seeOther(w, r, "/#insights")
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	n, err := LoadDemo(r.Context(), st.Backend())
	if err != nil {
		s.log.Warn("loading demo memories", "loaded", n, "error", err)
		st.Notifier().Error(msgDemoFailed)
	} else {
		s.mu.Lock()
		s.demoLoaded = true
		s.mu.Unlock()
	}
	if err := st.Reload(r.Context()); err != nil {
		s.log.Debug("reload after demo", "error", err)
	}
	seeOther(w, r, "/")
}

// lookup resolves {id} against the store's current list. Unknown ids send
// the page home with a notice.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (memory.Record, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid memory id", http.StatusBadRequest)
		return memory.Record{}, false
	}
	rec, ok := s.deps.Store.Get(id)
	if !ok {
		s.deps.Store.Notifier().Info(msgNotFound)
		seeOther(w, r, "/")
		return memory.Record{}, false
	}
	return rec, true
}

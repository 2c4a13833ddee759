// Package web serves the Memory Capsule page: the memory grid, the detail
// overlay, pattern discovery and the decorative background.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/capsule/internal/anim"
	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/share"
	"github.com/kalambet/capsule/internal/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// LoadingSafetyNet hides the loading indicator if the first load never
// completes.
const LoadingSafetyNet = 60 * time.Second

// Default viewport for the server-rendered star field; the page asks for a
// fresh one at its real size.
const (
	defaultViewportW = 1440
	defaultViewportH = 900
)

// Photos arrive as multipart uploads.
const maxFormSize = 16 << 20 // 16MB

// Deps holds what the page needs.
type Deps struct {
	Store *store.Store
	Hub   *Hub // optional; /events is not mounted without it
	Share share.Links
	// ImageBase prefixes server-relative photo paths, e.g. the remote
	// service's URL. Empty means same origin.
	ImageBase  string
	LLMEnabled bool
	Logger     *slog.Logger
	// StarSource seeds star fields. Nil uses a random seed per render.
	StarSource func() rand.Source
}

// Server renders the page and handles its form posts.
type Server struct {
	deps Deps
	tmpl *template.Template
	log  *slog.Logger

	mu         sync.Mutex
	overlay    Overlay
	insights   *Insights
	demoLoaded bool
}

// New parses the embedded templates.
func New(deps Deps) (*Server, error) {
	tmpl, err := template.New("").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, tmpl: tmpl, log: logger}, nil
}

// Register mounts the page routes on r.
func (s *Server) Register(r chi.Router) {
	static, _ := fs.Sub(staticFS, "static")

	r.Get("/", s.handleIndex)
	r.Post("/memories", s.handleAdd)
	r.Get("/memories/{id}", s.handleOpen)
	r.Get("/memories/{id}/insight", s.handleReflection)
	r.Post("/memories/{id}/delete", s.handleDelete)
	r.Get("/fragments/grid", s.handleGridFragment)
	r.Get("/fragments/stars", s.handleStarsFragment)
	r.Post("/discover", s.handleDiscover)
	r.Post("/demo", s.handleDemo)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	if s.deps.Hub != nil {
		r.Handle("/events", s.deps.Hub)
	}
}

// ResetDiscovery clears the displayed insights, e.g. after the collection
// was reset.
func (s *Server) ResetDiscovery() {
	s.mu.Lock()
	s.insights = nil
	s.demoLoaded = false
	s.mu.Unlock()
}

func (s *Server) page(overlay *OverlayView) Page {
	st := s.deps.Store
	snap := st.Snapshot()

	s.mu.Lock()
	insights := s.insights
	demoLoaded := s.demoLoaded
	s.mu.Unlock()

	eventsPath := ""
	if s.deps.Hub != nil {
		eventsPath = "/events"
	}

	return Page{
		Grid:        RenderGrid(snap.Records, s.deps.ImageBase),
		Loading:     !snap.Loaded,
		Moods:       memory.MoodNames(),
		Overlay:     overlay,
		Insights:    insights,
		Toasts:      st.Notifier().Drain(),
		Share:       s.deps.Share,
		Stars:       RenderStars(s.starField(defaultViewportW, defaultViewportH)),
		Scene:       RenderScene(anim.Layout()),
		DemoLoaded:  demoLoaded,
		LLMEnabled:  s.deps.LLMEnabled,
		EventsPath:  eventsPath,
		SafetyNetMS: LoadingSafetyNet.Milliseconds(),
		RedrawMS:    anim.ConstellationInterval.Milliseconds(),
	}
}

func (s *Server) render(w http.ResponseWriter, code int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("rendering template", "template", name, "error", err)
	}
}

func seeOther(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/metrics"
	"github.com/kalambet/capsule/internal/storage"
	"github.com/kalambet/capsule/internal/store"
)

// Photos arrive inline as data URIs, so the add endpoint accepts large bodies.
const maxAddBodySize = 16 << 20 // 16MB

// Deps holds what the REST service needs.
type Deps struct {
	Storage  *storage.Store
	Analyzer store.Discoverer
	Metrics  *metrics.Collector // optional
	// OnChange is called after every successful add or delete. Optional.
	OnChange func()
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// NewHandler returns the memory REST service as a standalone handler with
// the common middleware applied.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(slog.Default()))
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	Register(r, deps)
	return r
}

// Register mounts the REST routes on r. The page routes share the same
// router, so paths here are the service contract verbatim.
func Register(r chi.Router, deps Deps) {
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		r.Get("/health", handleHealth(deps))
		r.Post("/memories/add", handleAddMemory(deps))
		r.Get("/memories/all", handleListMemories(deps))
		r.Delete("/memories/{id}", handleDeleteMemory(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/analyze/one", handleAnalyzeOne(deps))
		r.Handle("/uploads/*", handleUploads(deps))
		// Preflights must reach the cors handler; it answers them itself.
		for _, p := range []string{"/health", "/memories/add", "/memories/all", "/memories/{id}", "/analyze", "/analyze/one"} {
			r.Options(p, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}
	})
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Storage.CountMemories()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "storage unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"memories": n,
			"time":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func handleAddMemory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAddBodySize)
		defer r.Body.Close()

		var c memory.Candidate
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := c.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "%s", err.Error())
			return
		}

		rec, err := deps.Storage.SaveMemory(c)
		if err != nil {
			slog.Error("saving memory", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to save memory")
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.MemoriesAdded.Inc()
		}
		changed(deps)

		writeJSON(w, http.StatusCreated, rec)
	}
}

func handleListMemories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Storage.ListMemories()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list memories: %v", err)
			return
		}
		if records == nil {
			records = []memory.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleDeleteMemory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "Invalid memory id")
			return
		}

		if err := deps.Storage.DeleteMemory(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "Memory not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "failed to delete memory: %v", err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.MemoriesDeleted.Inc()
		}
		changed(deps)

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Storage.ListMemories()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list memories: %v", err)
			return
		}
		if len(records) < store.MinForDiscovery {
			httpError(w, http.StatusBadRequest, "%s", store.ErrTooFew.Error())
			return
		}

		set, outcome := deps.Analyzer.Discover(r.Context(), records)
		slog.Debug("pattern discovery", "memories", len(records), "outcome", outcome)
		writeJSON(w, http.StatusOK, set)
	}
}

type analyzeOneRequest struct {
	Memory *memory.Record `json:"memory"`
}

type analyzeOneResponse struct {
	Insight string `json:"insight,omitempty"`
}

func handleAnalyzeOne(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAddBodySize)
		defer r.Body.Close()

		var req analyzeOneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Memory == nil {
			httpError(w, http.StatusBadRequest, "memory is required")
			return
		}

		// Any failure omits the insight; the page substitutes its mood text.
		text, err := deps.Analyzer.Reflect(r.Context(), *req.Memory)
		if err != nil {
			slog.Debug("single-memory insight unavailable", "id", req.Memory.ID, "error", err)
			text = ""
		}
		writeJSON(w, http.StatusOK, analyzeOneResponse{Insight: text})
	}
}

func handleUploads(deps Deps) http.Handler {
	dir := deps.Storage.UploadsDir()
	if dir == "" {
		return http.NotFoundHandler()
	}
	return http.StripPrefix(storage.UploadsPrefix, http.FileServer(http.Dir(dir)))
}

func changed(deps Deps) {
	if deps.OnChange != nil {
		deps.OnChange()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// httpError writes the service's error shape, {"error": "..."}.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

package main

import (
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/muted-image-editor/internal/metrics"
	"github.com/fpang/muted-image-editor/internal/preset"
	"github.com/fpang/muted-image-editor/internal/session"
)

// server holds everything the HTTP handlers share.
type server struct {
	catalog        *preset.Catalog
	sessions       *session.Registry
	maxUploadBytes int64
	heartbeat      time.Duration
	frontend       fs.FS
}

// routes builds the router. Event streams skip compression and the request
// timeout; every other API route gets both.
func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withLogging)
	r.Use(withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": s.sessions.Len(),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/sessions/{id}/events", s.handleEvents)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(30 * time.Second))
			g.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

			g.Get("/presets", s.handlePresets)
			g.Post("/sessions", s.handleCreateSession)
			g.Get("/sessions/{id}", s.handleGetSession)
			g.Delete("/sessions/{id}", s.handleDeleteSession)
			g.Post("/sessions/{id}/image", s.handleUpload)
			g.Post("/sessions/{id}/preset", s.handleSelectPreset)
			g.Post("/sessions/{id}/intensity", s.handleIntensity)
			g.Post("/sessions/{id}/reset", s.handleReset)
			g.Get("/sessions/{id}/original", s.handleOriginal)
			g.Get("/sessions/{id}/edited", s.handleEdited)
		})
	})

	if s.frontend != nil {
		r.NotFound(s.spaHandler())
	}
	return r
}

// spaHandler serves the embedded frontend, falling back to index.html for
// unknown paths.
func (s *server) spaHandler() http.HandlerFunc {
	fileServer := http.FileServer(http.FS(s.frontend))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			httpError(w, http.StatusNotFound, "not found")
			return
		}

		// Security headers
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		path := r.URL.Path
		if path != "/" {
			f, err := s.frontend.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	}
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

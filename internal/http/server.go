// Package http serves the public display board, the admin page and a small
// JSON API over the shared donation state.
package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"donations/internal/app"
	"donations/internal/log"
	"donations/internal/middleware/ratelimit"
	"donations/internal/middleware/security"
	appweb "donations/web"
)

// DefaultMaxUploadBytes bounds spreadsheet and backup uploads.
const DefaultMaxUploadBytes = 10 << 20

type Options struct {
	Logger         *log.Logger
	RateLimit      ratelimit.Config
	MaxUploadBytes int64
	// AllowedOrigins lists origins allowed to read the JSON API and the
	// event stream from a browser. Empty allows any origin.
	AllowedOrigins []string
}

type Server struct {
	http.Server
	app       *app.App
	templates *template.Template
	events    *EventHub
	limiter   *ratelimit.Limiter
	ips       *security.IPResolver
	logger    *log.Logger
	maxUpload int64

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server. The event hub is registered as a sink on the app dashboard.
func NewServer(addr string, a *app.App, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		app:       a,
		templates: t,
		events:    NewEventHub(opts.Logger),
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		ips:       security.NewIPResolver(),
		logger:    logger,
		maxUpload: opts.MaxUploadBytes,
	}
	a.Dashboard.AddSink(s.events)
	s.Handler = s.routes(static, opts.AllowedOrigins)
	return s, nil
}

func (s *Server) routes(static fs.FS, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Cache-Control", "Last-Event-ID"},
		MaxAge:         300,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string { return middleware.GetReqID(r.Context()) }))
	r.Use(log.AccessLog(s.logger, s.ips.ClientIP))
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", s.handleDisplay)
	r.With(corsHandler).Get("/events", s.events.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(corsHandler)
		r.Get("/view", s.handleAPIView)
		r.Get("/rates", s.handleAPIRates)
		r.Get("/convert", s.handleAPIConvert)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.limiter.Middleware(s.ips.ClientIP, s.handleRateLimited))

		r.Get("/", s.handleAdmin)
		r.Post("/donations", s.handleAddDonation)
		r.Post("/donations/{id}", s.handleEditDonation)
		r.Post("/donations/{id}/delete", s.handleDeleteDonation)

		r.Post("/selection/{id}/toggle", s.handleToggleSelection)
		r.Post("/selection/all", s.handleSelectAll)
		r.Post("/selection/clear", s.handleClearSelection)
		r.Post("/selection/delete", s.handleDeleteSelected)

		r.Post("/rates", s.handleSaveRates)
		r.Post("/import", s.handleImport)
		r.Post("/restore", s.handleRestore)
		r.Get("/export", s.handleExport)
		r.Get("/backup", s.handleBackup)
	})
	return r
}

// Shutdown closes live event streams and the rate limiter, then shuts the
// HTTP server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.events.Close()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once a view has been computed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.app.Dashboard.Generation() == 0 {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.ips.ClientIP(r), log.FieldPath, r.URL.Path)
	http.Error(w, "تم تجاوز عدد الطلبات المسموح، حاول لاحقاً", http.StatusTooManyRequests)
}

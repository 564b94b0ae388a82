// Package site serves the bulletin's pages and scripts.
package site

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed pages/*.html js/*.js css/*.css
var content embed.FS

// Config holds server configuration.
type Config struct {
	Addr     string
	AllowAll bool                 // allow all CORS origins (dev mode)
	Registry *prometheus.Registry // nil for a private registry
	Logger   *zap.Logger
}

// Server hosts the bulletin.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. Nothing listens until Start.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, logger: cfg.Logger, registry: cfg.Registry}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("site")
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	factory := promauto.With(s.registry)
	s.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "findit",
		Subsystem: "site",
		Name:      "requests_total",
		Help:      "Total number of requests by route and status",
	}, []string{"route", "status"})
	s.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "findit",
		Subsystem: "site",
		Name:      "request_duration_seconds",
		Help:      "Request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	s.router = s.buildRouter()
	return s
}

// NewRouter returns the site's handler without a server around it.
func NewRouter(cfg Config) chi.Router {
	return New(cfg).Router()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(noCache)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/", s.page)
	r.Get("/{page}", s.page)
	r.Get("/js/{file}", s.asset("js"))
	r.Get("/css/{file}", s.asset("css"))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Registry returns the registry the site records into.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("listening", zap.String("addr", s.cfg.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Pages lists the names of the pages the site serves.
func Pages() []string {
	entries, _ := fs.ReadDir(content, "pages")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// Page returns the markup of a page by name.
func Page(name string) ([]byte, error) {
	return fs.ReadFile(content, "pages/"+name)
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "page")
	if name == "" {
		name = "index.html"
	}
	if !strings.HasSuffix(name, ".html") {
		http.NotFound(w, r)
		return
	}

	data, err := fs.ReadFile(content, "pages/"+name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) asset(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := dir + "/" + chi.URLParam(r, "file")
		if _, err := fs.Stat(content, name); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFileFS(w, r, content, name)
	}
}

// observe records request metrics and logs each request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		took := time.Since(start)

		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.duration.WithLabelValues(route).Observe(took.Seconds())
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", took),
		)
	})
}

// noCache stops clients from reusing stale pages or scripts.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/ecovision/internal/dashboard"
	"github.com/lox/ecovision/internal/logger"
	"github.com/lox/ecovision/internal/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 5 * time.Second

	defaultSessionTTL  = 24 * time.Hour
	defaultMaxSessions = 10000
	recentApplies      = 5
)

// Config holds the server's tunables.
type Config struct {
	Port       string
	SessionTTL time.Duration
	// MaxSessions caps live sessions; the least recently seen is evicted first.
	MaxSessions int
	// CORSOrigins lists origins allowed to read /api/*. Empty means same-origin only.
	CORSOrigins []string
}

type Server struct {
	store    *store.Store
	cfg      Config
	tmpl     *template.Template
	log      *logger.Logger
	sessions *sessionManager
}

func NewServer(st *store.Store, source dashboard.Source, cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	return &Server{
		store:    st,
		cfg:      cfg,
		tmpl:     newTemplates(),
		log:      log,
		sessions: newSessionManager(st, source, cfg.SessionTTL, cfg.MaxSessions, log),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/filters", s.handleFilters)
	r.Post("/apply", s.handleApply)
	r.Get("/partials/results", s.handleResultsPartial)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		if len(s.cfg.CORSOrigins) > 0 {
			api.Use(cors.Handler(corsOptions(s.cfg.CORSOrigins)))
		}
		api.Get("/state", s.handleAPIState)
	})

	return r
}

// corsOptions allows credentialed reads only from listed origins; browsers reject
// credentials under a wildcard.
func corsOptions(origins []string) cors.Options {
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}
}

// Run serves until ctx is cancelled, pruning idle sessions in the background.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go s.sessions.runJanitor(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Errorw("server_shutdown_failed", "err", err)
		}
	}()

	s.log.Infow("server_listening", "addr", server.Addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/climadash/internal/dashboard"
	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/store"
)

const sessionCookie = "climadash_session"

// ImportLog lists recent data imports.
type ImportLog interface {
	RecentImportRuns(ctx context.Context, limit int) ([]store.ImportRun, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Port       string
	Cities     filters.CityLister
	Dispatcher *dashboard.Dispatcher
	Sessions   *dashboard.Sessions
	Imports    ImportLog
	DB         Pinger
	Coverage   CoverageReporter
	// SecureCookies marks the session cookie Secure, for HTTPS deployments.
	SecureCookies bool
}

type Server struct {
	port          string
	cities        filters.CityLister
	dispatcher    *dashboard.Dispatcher
	sessions      *dashboard.Sessions
	imports       ImportLog
	db            Pinger
	coverage      CoverageReporter
	secureCookies bool
	tmpl          *template.Template
	card          *cardCache
}

func NewServer(opts Options) *Server {
	return &Server{
		port:          opts.Port,
		cities:        opts.Cities,
		dispatcher:    opts.Dispatcher,
		sessions:      opts.Sessions,
		imports:       opts.Imports,
		db:            opts.DB,
		coverage:      opts.Coverage,
		secureCookies: opts.SecureCookies,
		tmpl:          newTemplates(),
		card:          &cardCache{ttl: 10 * time.Minute},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /panels/add", s.handlePanelAdd)
	mux.HandleFunc("POST /panels/remove", s.handlePanelRemove)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/cities", s.handleAPICities)
	mux.HandleFunc("GET /api/panels/{index}", s.handleAPIPanel)
	mux.HandleFunc("GET /api/imports", s.handleAPIImports)
	mux.HandleFunc("GET /og.png", s.handleCard)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// session returns the caller's session, issuing a cookie for new ones.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *dashboard.Session {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ambush/internal/repo"
	"ambush/pkg/logx"
)

// Config binds the JSON API.
type Config struct {
	Host     string
	Port     int
	RootPath string // optional mount prefix, e.g. "/soundboard"
}

// Server is the web adapter. It talks to the core exclusively through the
// repositories; events reach it the same way they reach everyone else.
type Server struct {
	cfg Config
	log logx.Logger
	srv *http.Server
}

func New(cfg Config, sounds *repo.Sounds, conf *repo.Config, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}

	h := &handlers{sounds: sounds, conf: conf, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	api := chi.NewRouter()
	api.Route("/api", func(r chi.Router) {
		r.Get("/sounds", h.listSounds)
		r.Post("/sounds", h.uploadSound)
		r.Get("/sounds/{id}", h.downloadSound)
		r.Patch("/sounds/{id}", h.renameSound)
		r.Delete("/sounds/{id}", h.deleteSound)

		r.Get("/config/interval", h.getInterval)
		r.Put("/config/interval", h.setInterval)
		r.Get("/config/volume", h.getVolume)
		r.Put("/config/volume", h.setVolume)
	})

	if p := strings.Trim(cfg.RootPath, "/"); p != "" {
		r.Mount("/"+p, api)
	} else {
		r.Mount("/", api)
	}

	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background. A listen failure is reported through the
// returned channel rather than killing the process here.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web api listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("web api: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/patchwatch/patchwatch/internal/alerting"
	cleanupsvc "github.com/patchwatch/patchwatch/internal/cleanup"
	"github.com/patchwatch/patchwatch/internal/notifier"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address   string
	JWTSecret []byte
	TokenTTL  time.Duration
	Verbose   bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 15 * time.Minute
	}
}

// Deps are the pipeline components the API exposes.
type Deps struct {
	Storage    storage.Storage
	Manager    *alerting.Manager
	Registry   *alerting.Registry
	Matcher    *notifier.Matcher
	Dispatcher *notifier.Dispatcher
	Scheduler  *cleanupsvc.Scheduler
}

// Server is the HTTP API server.
type Server struct {
	config *Config
	deps   Deps
	server *http.Server
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("lifecycle manager is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT secret is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config: cfg,
		deps:   deps,
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

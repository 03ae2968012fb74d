// unison-payments/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/unison-payments/internal/api"
	"github.com/example/unison-payments/internal/app"
	"github.com/example/unison-payments/internal/config"
	"github.com/example/unison-payments/internal/logging"
)

type APIServer struct {
	app    *app.App
	server *http.Server
}

func NewAPIServer(ctx context.Context, cfg config.Config) (*APIServer, error) {
	a, err := app.New(ctx, cfg, logging.New(cfg.Logging))
	if err != nil {
		return nil, err
	}
	return &APIServer{
		app: a,
		server: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      api.NewRouter(a.APIDeps(), a.Verifier),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
	}, nil
}

func (s *APIServer) Start() error {
	s.app.Logger.Info("payments api listening", "addr", s.server.Addr)

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.app.Logger.Info("shutting down payments api")
		ctx, cancel := context.WithTimeout(context.Background(), s.app.Config.HTTP.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			s.app.Logger.Error("http server shutdown", "err", err)
		}
	}()

	err := s.server.ListenAndServe()
	s.app.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	server, err := NewAPIServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

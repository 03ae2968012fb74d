// Package app assembles the coordinator and its collaborators from config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/unison-payments/internal/api"
	"github.com/example/unison-payments/internal/auth"
	"github.com/example/unison-payments/internal/clients"
	"github.com/example/unison-payments/internal/config"
	"github.com/example/unison-payments/internal/grpcserver"
	"github.com/example/unison-payments/internal/payments"
	"github.com/example/unison-payments/internal/queue"
	"github.com/example/unison-payments/internal/store"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Service  *payments.Service
	Verifier *auth.Verifier

	closers []func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	var opts []payments.MockOption
	if cfg.Payments.MockWebhookSecret != "" {
		opts = append(opts, payments.WithWebhookSecret(cfg.Payments.MockWebhookSecret))
	}
	deps := payments.Deps{
		Provider: payments.NewProvider(cfg.Payments.Provider, log, opts...),
		Logger:   log,
	}

	if cfg.Storage.Configured() {
		deps.Vault = clients.NewVaultClient(clients.NewServiceClient(cfg.Storage.BaseURL(), clients.DefaultRetryPolicy))
	}
	if cfg.Context.Configured() {
		deps.Profiles = clients.NewProfileClient(clients.NewServiceClient(cfg.Context.BaseURL(), clients.DefaultRetryPolicy))
	}

	sink, err := a.eventSink(cfg)
	if err != nil {
		return nil, err
	}
	deps.Events = payments.NewEventLogger(sink, log)

	if cfg.Store.Backend == "postgres" {
		pool, pg, err := store.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		deps.Instruments, deps.Transactions = pg, pg
	}

	svc, err := payments.NewService(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	a.Verifier = auth.NewVerifier(auth.Config{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Disabled: cfg.Auth.Disabled,
	}, log)

	log.Info("payments coordinator ready",
		"provider", svc.ProviderName(),
		"store", cfg.Store.Backend,
		"events", cfg.Events.Sink,
		"vault", cfg.Storage.Configured(),
		"profiles", cfg.Context.Configured(),
		"require_approval", cfg.Payments.RequireApproval,
		"auth_disabled", cfg.Auth.Disabled,
	)
	return a, nil
}

func (a *App) eventSink(cfg config.Config) (payments.EventSink, error) {
	switch cfg.Events.Sink {
	case "", "none":
		return nil, nil
	case "http":
		return ContextEventSink(cfg), nil
	case "kafka":
		pub := queue.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		a.closers = append(a.closers, func() {
			if err := pub.Close(); err != nil {
				a.Logger.Warn("close event publisher", "err", err)
			}
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Events.Sink)
	}
}

// ContextEventSink posts events to the context service.
func ContextEventSink(cfg config.Config) *clients.EventSink {
	return clients.NewEventSink(clients.NewServiceClient(cfg.Context.BaseURL(), clients.DefaultRetryPolicy))
}

func (a *App) APIDeps() api.Deps {
	return api.Deps{Payments: a.Service, RequireApproval: a.Config.Payments.RequireApproval, Logger: a.Logger}
}

func (a *App) GRPCServer() *grpcserver.PaymentsServer {
	return &grpcserver.PaymentsServer{Payments: a.Service, RequireApproval: a.Config.Payments.RequireApproval, Logger: a.Logger}
}

// Close releases collaborators in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

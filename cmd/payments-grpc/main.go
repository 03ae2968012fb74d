// cmd/payments-grpc/main.go
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gp "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/example/unison-payments/internal/app"
	"github.com/example/unison-payments/internal/config"
	"github.com/example/unison-payments/internal/grpcserver"
	"github.com/example/unison-payments/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[payments-grpc] load config: %v", err)
	}
	logger := logging.New(cfg.Logging)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("[payments-grpc] init: %v", err)
	}
	defer a.Close()

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(gp.UnaryServerInterceptor, grpcserver.AuthInterceptor(a.Verifier)),
		grpc.StreamInterceptor(gp.StreamServerInterceptor),
	)
	grpcserver.RegisterPaymentsServer(grpcServer, a.GRPCServer())

	// Default gRPC metrics
	gp.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatalf("[payments-grpc] listen %s: %v", cfg.GRPC.Addr, err)
	}
	go func() {
		logger.Info("serving gRPC", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("[payments-grpc] grpc serve: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.GRPC.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", cfg.GRPC.MetricsAddr, "path", "/metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[payments-grpc] metrics serve: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down payments-grpc")
	grpcServer.GracefulStop()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	logger.Info("payments-grpc stopped")
}

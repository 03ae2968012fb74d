package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/unison-payments/internal/config"
	"github.com/example/unison-payments/internal/logging"
	"github.com/example/unison-payments/internal/payments"
)

func baseConfig() config.Config {
	var cfg config.Config
	cfg.Payments.Provider = "mock"
	cfg.Payments.RequireApproval = true
	cfg.Auth.Disabled = true
	cfg.Store.Backend = "memory"
	cfg.Events.Sink = "none"
	return cfg
}

func TestNewInMemory(t *testing.T) {
	a, err := New(context.Background(), baseConfig(), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, payments.ProviderMock, a.Service.ProviderName())
	assert.True(t, a.APIDeps().RequireApproval)
	assert.True(t, a.GRPCServer().RequireApproval)

	inst, err := a.Service.RegisterInstrument(context.Background(), payments.PaymentInstrument{PersonID: "p1", Provider: "mock", Kind: "card"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, inst.InstrumentID)
}

func TestNewFallsBackToMockProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.Payments.Provider = "stripe"
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, payments.ProviderMock, a.Service.ProviderName())
}

func TestNewWithKafkaSinkDoesNotDial(t *testing.T) {
	cfg := baseConfig()
	cfg.Events.Sink = "kafka"
	cfg.Events.Brokers = []string{"127.0.0.1:1"}
	cfg.Events.Topic = "payments.events"
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Len(t, a.closers, 1)
	a.Close()
	assert.Empty(t, a.closers)
}

func TestNewRejectsUnknownSink(t *testing.T) {
	cfg := baseConfig()
	cfg.Events.Sink = "carrier-pigeon"
	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

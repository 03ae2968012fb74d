package main

import (
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/unison-payments/internal/api"
	"github.com/example/unison-payments/internal/auth"
	"github.com/example/unison-payments/internal/logging"
	"github.com/example/unison-payments/internal/payments"
)

func TestSmokeFlowInProcess(t *testing.T) {
	log := logging.Discard()
	svc, err := payments.NewService(payments.Deps{Provider: payments.NewMockProvider(), Logger: log})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(
		api.Deps{Payments: svc, RequireApproval: true, Logger: log},
		auth.NewVerifier(auth.Config{Disabled: true}, log),
	))
	defer srv.Close()

	require.NoError(t, run(resty.New().SetBaseURL(srv.URL), "smoke-person", "1.23"))
}

func TestSmokeFlowReportsFailures(t *testing.T) {
	log := logging.Discard()
	svc, err := payments.NewService(payments.Deps{Provider: payments.NewMockProvider(), Logger: log})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(
		api.Deps{Payments: svc, RequireApproval: true, Logger: log},
		auth.NewVerifier(auth.Config{Secret: "s", Issuer: "unison-auth", Audience: "unison-internal"}, log),
	))
	defer srv.Close()

	err = run(resty.New().SetBaseURL(srv.URL), "smoke-person", "1.23")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/unison-payments/internal/logging"
	perr "github.com/example/unison-payments/pkg/errors"
)

var testCfg = Config{Secret: "s3cret", Issuer: "unison-auth", Audience: "unison-internal"}

func sign(t *testing.T, secret, issuer, audience string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "person-1",
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serve(v *Verifier, req *http.Request) (*httptest.ResponseRecorder, *http.Request) {
	var seen *http.Request
	h := v.Middleware(func(w http.ResponseWriter, err error) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(perr.CodeOf(err)))
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareAcceptsValidBaton(t *testing.T) {
	token := sign(t, testCfg.Secret, testCfg.Issuer, testCfg.Audience, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/payments/transactions/t1", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, seen := serve(NewVerifier(testCfg, logging.Discard()), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, token, BatonFromContext(seen.Context()))
	assert.Equal(t, "person-1", ClaimsFromContext(seen.Context())["sub"])
}

func TestMiddlewareAcceptsBatonHeader(t *testing.T) {
	token := sign(t, testCfg.Secret, testCfg.Issuer, testCfg.Audience, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(BatonHeader, token)

	rec, _ := serve(NewVerifier(testCfg, logging.Discard()), req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejects(t *testing.T) {
	cases := map[string]string{
		"missing":        "",
		"wrong secret":   sign(t, "other", testCfg.Issuer, testCfg.Audience, time.Hour),
		"wrong issuer":   sign(t, testCfg.Secret, "someone", testCfg.Audience, time.Hour),
		"wrong audience": sign(t, testCfg.Secret, testCfg.Issuer, "public", time.Hour),
		"expired":        sign(t, testCfg.Secret, testCfg.Issuer, testCfg.Audience, -time.Minute),
		"garbage":        "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec, seen := serve(NewVerifier(testCfg, logging.Discard()), req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, perr.CodeUnauthorized, rec.Body.String())
			assert.Nil(t, seen)
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	cfg := testCfg
	cfg.Disabled = true
	rec, seen := serve(NewVerifier(cfg, logging.Discard()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, seen)
}

func TestTokenFrom(t *testing.T) {
	assert.Equal(t, "abc", TokenFrom("Bearer abc", "xyz"))
	assert.Equal(t, "xyz", TokenFrom("Basic abc", " xyz "))
	assert.Equal(t, "", TokenFrom("", ""))
}

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	perr "github.com/example/unison-payments/pkg/errors"
)

// BatonHeader carries the caller identity token between services.
const BatonHeader = "X-Context-Baton"

type ctxKey int

const (
	batonKey ctxKey = iota
	claimsKey
)

func WithBaton(ctx context.Context, baton string) context.Context {
	return context.WithValue(ctx, batonKey, baton)
}

// BatonFromContext returns the raw baton forwarded with downstream calls.
func BatonFromContext(ctx context.Context) string {
	v, _ := ctx.Value(batonKey).(string)
	return v
}

func ClaimsFromContext(ctx context.Context) jwt.MapClaims {
	v, _ := ctx.Value(claimsKey).(jwt.MapClaims)
	return v
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	// Disabled skips verification entirely (DISABLE_AUTH_FOR_TESTS).
	Disabled bool
}

// Verifier checks HS256 batons issued by the auth service.
type Verifier struct {
	cfg Config
	log *slog.Logger
}

func NewVerifier(cfg Config, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{cfg: cfg, log: log}
}

func (v *Verifier) Verify(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(v.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, perr.Wrap(perr.CodeUnauthorized, "invalid baton", err)
	}
	return claims, nil
}

// Authenticate verifies raw and returns ctx carrying the baton and its
// claims. With verification disabled ctx is returned as is.
func (v *Verifier) Authenticate(ctx context.Context, raw string) (context.Context, error) {
	if v.cfg.Disabled {
		return ctx, nil
	}
	if raw == "" {
		return ctx, perr.Unauthorized("missing baton")
	}
	claims, err := v.Verify(raw)
	if err != nil {
		return ctx, err
	}
	return context.WithValue(WithBaton(ctx, raw), claimsKey, claims), nil
}

// Middleware rejects requests without a valid baton. onError renders the
// rejection so the API keeps one error body format.
func (v *Verifier) Middleware(onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := v.Authenticate(r.Context(), tokenFromRequest(r))
			if err != nil {
				v.log.Debug("baton rejected", "path", r.URL.Path, "err", err)
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	return TokenFrom(r.Header.Get("Authorization"), r.Header.Get(BatonHeader))
}

// TokenFrom picks the bearer token from an Authorization value, falling back
// to a bare baton.
func TokenFrom(authorization, baton string) string {
	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(baton)
}

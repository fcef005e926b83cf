package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"groupchat/internal/apperr"
	"groupchat/internal/auth"
	"groupchat/internal/models"
	"groupchat/pkg/logger"

	"github.com/rs/xid"
)

type accountKey struct{}

func withAccount(ctx context.Context, a *models.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, a)
}

// accountFrom returns the account set by RequireAuth.
func accountFrom(ctx context.Context) *models.Account {
	a, _ := ctx.Value(accountKey{}).(*models.Account)
	return a
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLog tags every request with an id and writes an access log line.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := logger.NewContextWithID(r.Context(), id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.FromContext(ctx).Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// RequireAuth resolves the bearer token to an account.
func RequireAuth(tokens *auth.TokenService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, apperr.Unauthenticated("missing bearer token"))
			return
		}

		account, err := tokens.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		next(w, r.WithContext(withAccount(r.Context(), account)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

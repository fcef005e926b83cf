package auth

import (
	"context"
	"testing"
	"time"

	"groupchat/internal/apperr"
	"groupchat/internal/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokens(t *testing.T) (*TokenService, *database.MemoryDB) {
	t.Helper()
	db := database.NewMemoryDB()
	return NewTokenService(db, testSecret), db
}

func TestIssueAndValidate(t *testing.T) {
	req := require.New(t)
	tokens, _ := newTestTokens(t)

	token, err := tokens.Issue(42, time.Minute)
	req.NoError(err)

	id, err := tokens.Validate(token)
	req.NoError(err)
	req.Equal(42, id)
}

func TestIssueDefaultTTL(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	tokens := NewTokenService(database.NewMemoryDB(), testSecret, WithClock(func() time.Time { return clock }))

	token, err := tokens.Issue(7, 0)
	req.NoError(err)

	clock = now.Add(DefaultTokenTTL - time.Second)
	_, err = tokens.Validate(token)
	req.NoError(err)

	clock = now.Add(DefaultTokenTTL + time.Second)
	_, err = tokens.Validate(token)
	req.ErrorIs(err, apperr.ErrUnauthenticated)
}

func TestValidateRejects(t *testing.T) {
	tokens, _ := newTestTokens(t)
	now := time.Now()

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "garbage",
			token: func(t *testing.T) string {
				return "not.a.token"
			},
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), jwt.RegisteredClaims{
					Subject:   "1",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
					Subject:   "1",
					ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
				})
			},
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: "1"})
			},
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
			},
		},
		{
			name: "non numeric subject",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
					Subject:   "alice",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
			},
		},
		{
			name: "none algorithm",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{
					Subject:   "1",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Validate(tt.token(t))
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	tokens, db := newTestTokens(t)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	account, err := db.CreateAccount(ctx, "alice", "alice@example.com", hash)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		id, err := tokens.Authenticate(ctx, "alice", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, account.ID, id)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := tokens.Authenticate(ctx, "alice", "battery staple")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := tokens.Authenticate(ctx, "mallory", "correct horse")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	tokens, db := newTestTokens(t)

	account, err := db.CreateAccount(ctx, "bob", "bob@example.com", "x")
	require.NoError(t, err)

	token, err := tokens.Issue(account.ID, 0)
	require.NoError(t, err)

	got, err := tokens.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	orphan, err := tokens.Issue(account.ID+100, 0)
	require.NoError(t, err)
	_, err = tokens.Resolve(ctx, orphan)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

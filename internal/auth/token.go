package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
	"groupchat/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 30 * time.Minute

// TokenService issues and checks stateless session tokens. A token carries
// the account id as its subject and an expiry; nothing is stored server side.
type TokenService struct {
	accounts database.AccountRepository
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

type TokenOption func(*TokenService)

func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithTTL sets the lifetime used when Issue is called without one.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewTokenService(accounts database.AccountRepository, secret []byte, opts ...TokenOption) *TokenService {
	s := &TokenService{
		accounts: accounts,
		secret:   secret,
		ttl:      DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) Issue(accountID int, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(accountID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry and returns the subject account id.
// It does not check that the account still exists; see Resolve.
func (s *TokenService) Validate(tokenString string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "invalid token", Err: err}
	}

	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return 0, apperr.Unauthenticated("invalid token subject")
	}
	return id, nil
}

// Authenticate checks a username and password pair. Both an unknown
// username and a wrong password yield apperr.ErrInvalidCredentials.
func (s *TokenService) Authenticate(ctx context.Context, username, password string) (int, error) {
	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return 0, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return 0, apperr.Internal("load account", err)
	}

	ok, err := VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return 0, apperr.Internal("verify password", err)
	}
	if !ok {
		return 0, apperr.ErrInvalidCredentials
	}
	return account.ID, nil
}

// Resolve validates token and loads the account it names.
func (s *TokenService) Resolve(ctx context.Context, tokenString string) (*models.Account, error) {
	id, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccountByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, apperr.Internal("load account", err)
	}
	return account, nil
}

package auth

import (
	"context"
	"errors"
	"strings"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

// Service implements registration and login on top of the token service.
type Service struct {
	accounts database.AccountRepository
	tokens   *TokenService
}

func NewService(accounts database.AccountRepository, tokens *TokenService) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
	}
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.Password == "" {
		return nil, apperr.InvalidRequest("missing required fields")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	account, err := s.accounts.CreateAccount(ctx, username, email, hash)
	if errors.Is(err, database.ErrAccountExists) {
		return nil, apperr.Conflict("username or email already taken")
	}
	if err != nil {
		return nil, apperr.Internal("create account", err)
	}

	logger.FromContext(ctx).Infow("account registered", "account_id", account.ID)
	return s.respond(account)
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	id, err := s.tokens.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load account", err)
	}
	return s.respond(account)
}

func (s *Service) respond(account *models.Account) (*models.LoginResponse, error) {
	token, err := s.tokens.Issue(account.ID, 0)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}

	return &models.LoginResponse{
		Token:     token,
		TokenType: "bearer",
		Account:   *account,
	}, nil
}

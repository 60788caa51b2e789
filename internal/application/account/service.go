package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-api-connect/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type LoginResult struct {
	Token  string
	UserID string
}

// Service answers identity questions against the users table. It is the
// single identity source used by signup and connection codes.
type Service interface {
	CheckEmail(ctx context.Context, email string) (bool, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	GetUserID(ctx context.Context, email string) (string, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type tokenSigner interface {
	Sign(userID, email string) (string, error)
}

type service struct {
	repo   userStore
	signer tokenSigner
}

type ServiceDeps struct {
	UserRepo userStore
	// JWTProvider may be nil; Login then fails with ErrUpstream.
	JWTProvider tokenSigner
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.UserRepo, signer: deps.JWTProvider}
}

func (s *service) CheckEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("look up email: %w: %w", domain.ErrUpstream, err)
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up email: %w: %w", domain.ErrUpstream, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if s.signer == nil {
		return nil, domain.Newf(domain.ErrUpstream, "token signer not configured")
	}
	token, err := s.signer.Sign(u.UserID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w: %w", domain.ErrUpstream, err)
	}
	slog.Info("user logged in", "user_id", u.UserID)
	return &LoginResult{Token: token, UserID: u.UserID}, nil
}

func (s *service) GetUserID(ctx context.Context, email string) (string, error) {
	u, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Newf(domain.ErrNotFound, "user not found")
		}
		return "", fmt.Errorf("look up email: %w: %w", domain.ErrUpstream, err)
	}
	return u.UserID, nil
}

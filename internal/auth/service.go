package auth

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	pkgauth "github.com/muratovtemurbek/healthhub-uz/pkg/auth"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
)

var errInvalidCredentials = &domain.Error{
	Tag: "invalid_credentials", Kind: domain.KindAuthorization, Message: "invalid email or password",
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Service interface {
	Register(ctx context.Context, req *domain.CreateUserRequest) (*domain.User, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

type service struct {
	users repository.UserRepository
	clk   clock.Clock
	cfg   config.AuthConfig
}

func NewService(users repository.UserRepository, clk clock.Clock, cfg config.AuthConfig) Service {
	return &service{users: users, clk: clk, cfg: cfg}
}

func (s *service) Register(ctx context.Context, req *domain.CreateUserRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return s.users.Create(ctx, req, hash)
}

func (s *service) Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, *TokenPair, error) {
	req.Normalize()

	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, nil, errInvalidCredentials
	}

	ok, err := argon2id.ComparePasswordAndHash(req.Password, u.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, nil, errInvalidCredentials
	}

	pair, err := s.issuePair(u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := pkgauth.Parse(refreshToken, s.cfg.JWTSecret)
	if err != nil || claims.Typ != "refresh" {
		return nil, domain.ErrNotAuthorized
	}

	u, err := s.users.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, domain.ErrNotAuthorized
	}

	return s.issuePair(u)
}

// Authenticate resolves a bearer token to a live account. Tokens survive
// role changes only until expiry; the role claim is advisory and the row
// is the authority.
func (s *service) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := pkgauth.Parse(accessToken, s.cfg.JWTSecret)
	if err != nil || claims.Typ != "access" {
		return nil, domain.ErrNotAuthorized
	}

	u, err := s.users.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, domain.ErrNotAuthorized
	}
	return u, nil
}

func (s *service) issuePair(u *domain.User) (*TokenPair, error) {
	now := s.clk.Now()

	access, err := pkgauth.NewToken(u.ID, string(u.Role), "access", s.cfg.JWTSecret, now, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := pkgauth.NewToken(u.ID, string(u.Role), "refresh", s.cfg.JWTSecret, now, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

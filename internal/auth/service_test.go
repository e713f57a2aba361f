package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/auth"
	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
)

// ---------- Mocks ----------

type memUsers struct {
	byID    map[uuid.UUID]*domain.User
	byEmail map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{
		byID:    make(map[uuid.UUID]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (m *memUsers) Create(_ context.Context, req *domain.CreateUserRequest, passwordHash string) (*domain.User, error) {
	if m.byEmail[req.Email] != nil {
		return nil, &domain.Error{Tag: "email_taken", Kind: domain.KindConflict, Message: "email already registered"}
	}
	u := &domain.User{
		ID:           uuid.New(),
		Login:        req.Login,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         domain.Role(req.Role),
		Active:       true,
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return u, nil
}

func (m *memUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return m.byID[id], nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.byEmail[email], nil
}

func (m *memUsers) MarkVerified(_ context.Context, id uuid.UUID) error {
	if u := m.byID[id]; u != nil {
		u.Verified = true
	}
	return nil
}

func (m *memUsers) Deactivate(_ context.Context, id uuid.UUID) error {
	if u := m.byID[id]; u != nil {
		u.Active = false
	}
	return nil
}

func authConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

func newService() (auth.Service, *memUsers) {
	users := newMemUsers()
	return auth.NewService(users, clock.New(), authConfig()), users
}

func register(t *testing.T, svc auth.Service, email string) *domain.User {
	t.Helper()
	u, err := svc.Register(context.Background(), &domain.CreateUserRequest{
		Login:    "aziza",
		Email:    email,
		Password: "correct horse",
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// ---------- Tests ----------

func TestRegister(t *testing.T) {
	svc, users := newService()
	u := register(t, svc, "aziza@example.com")

	if u.Role != domain.RolePatient {
		t.Errorf("default role = %s, want patient", u.Role)
	}

	stored := users.byEmail["aziza@example.com"]
	if stored == nil {
		t.Fatal("user not stored")
	}
	if stored.PasswordHash == "correct horse" {
		t.Fatal("password stored in the clear")
	}
	if ok, _ := argon2id.ComparePasswordAndHash("correct horse", stored.PasswordHash); !ok {
		t.Fatal("stored hash does not verify the password")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService()

	cases := []struct {
		name string
		req  domain.CreateUserRequest
		tag  string
	}{
		{"missing login", domain.CreateUserRequest{Email: "a@b.c", Password: "long enough"}, "invalid_login"},
		{"bad email", domain.CreateUserRequest{Login: "a", Email: "nope", Password: "long enough"}, "invalid_email"},
		{"short password", domain.CreateUserRequest{Login: "a", Email: "a@b.c", Password: "short"}, "weak_password"},
		{"unknown role", domain.CreateUserRequest{Login: "a", Email: "a@b.c", Password: "long enough", Role: "wizard"}, "invalid_role"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), &c.req)
			if domain.Tag(err) != c.tag {
				t.Fatalf("got %v, want tag %s", err, c.tag)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newService()
	register(t, svc, "aziza@example.com")

	u, pair, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "  Aziza@Example.com ",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "aziza@example.com" {
		t.Errorf("email = %s", u.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token pair")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens are identical")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newService()
	register(t, svc, "aziza@example.com")

	_, _, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "aziza@example.com",
		Password: "wrong horse",
	})
	if domain.Tag(err) != "invalid_credentials" {
		t.Fatalf("got %v, want invalid_credentials", err)
	}
}

func TestLoginUnknownOrInactive(t *testing.T) {
	svc, users := newService()
	u := register(t, svc, "aziza@example.com")

	_, _, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "nobody@example.com", Password: "whatever!"})
	if domain.Tag(err) != "invalid_credentials" {
		t.Fatalf("unknown user: got %v", err)
	}

	if err := users.Deactivate(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}
	_, _, err = svc.Login(context.Background(), &domain.LoginRequest{Email: "aziza@example.com", Password: "correct horse"})
	if domain.Tag(err) != "invalid_credentials" {
		t.Fatalf("inactive user: got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService()
	u := register(t, svc, "aziza@example.com")

	_, pair, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "aziza@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Authenticate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated as %s, want %s", got.ID, u.ID)
	}

	// A refresh token is not a bearer credential.
	if _, err := svc.Authenticate(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("refresh as access: got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "garbage"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("garbage token: got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	svc, users := newService()
	u := register(t, svc, "aziza@example.com")

	_, pair, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "aziza@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatal(err)
	}

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatal("empty refreshed pair")
	}

	// An access token cannot mint new pairs.
	if _, err := svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("access as refresh: got %v", err)
	}

	// Deactivation cuts refresh off even before token expiry.
	if err := users.Deactivate(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("inactive refresh: got %v", err)
	}
}

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/auth"
	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/handlers"
)

// ---------- Mocks ----------

type fakeAuthService struct {
	user  *domain.User
	token string
}

func (f *fakeAuthService) Register(_ context.Context, req *domain.CreateUserRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.user != nil && f.user.Email == req.Email {
		return nil, &domain.Error{Tag: "email_taken", Kind: domain.KindConflict, Message: "email already registered"}
	}
	return &domain.User{ID: uuid.New(), Login: req.Login, Email: req.Email, Role: domain.RolePatient, Active: true}, nil
}

func (f *fakeAuthService) Login(_ context.Context, req *domain.LoginRequest) (*domain.User, *auth.TokenPair, error) {
	req.Normalize()
	if f.user == nil || f.user.Email != req.Email {
		return nil, nil, &domain.Error{Tag: "invalid_credentials", Kind: domain.KindAuthorization, Message: "invalid email or password"}
	}
	return f.user, &auth.TokenPair{AccessToken: f.token, RefreshToken: "r." + f.token}, nil
}

func (f *fakeAuthService) Refresh(_ context.Context, refreshToken string) (*auth.TokenPair, error) {
	if refreshToken != "r."+f.token {
		return nil, domain.ErrNotAuthorized
	}
	return &auth.TokenPair{AccessToken: f.token, RefreshToken: "r." + f.token}, nil
}

func (f *fakeAuthService) Authenticate(_ context.Context, accessToken string) (*domain.User, error) {
	if f.user == nil || accessToken != f.token {
		return nil, domain.ErrNotAuthorized
	}
	return f.user, nil
}

func newAuthServer(f *fakeAuthService) *httptest.Server {
	return httptest.NewServer(handlers.NewAuthHandler(f).Routes())
}

// ---------- Tests ----------

func TestRegisterEndpoint(t *testing.T) {
	srv := newAuthServer(&fakeAuthService{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/register", "application/json",
		strings.NewReader(`{"login":"aziza","email":"aziza@example.com","password":"correct horse"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Email != "aziza@example.com" {
		t.Fatalf("email = %q", out.Email)
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	srv := newAuthServer(&fakeAuthService{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/register", "application/json",
		strings.NewReader(`{"login":"aziza","email":"nope","password":"correct horse"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRegisterEndpointConflict(t *testing.T) {
	srv := newAuthServer(&fakeAuthService{
		user: &domain.User{ID: uuid.New(), Email: "aziza@example.com"},
	})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/register", "application/json",
		strings.NewReader(`{"login":"aziza","email":"aziza@example.com","password":"correct horse"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLoginEndpoint(t *testing.T) {
	f := &fakeAuthService{
		user:  &domain.User{ID: uuid.New(), Email: "aziza@example.com", Role: domain.RolePatient, Active: true},
		token: "access-token",
	}
	srv := newAuthServer(f)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/login", "application/json",
		strings.NewReader(`{"email":"aziza@example.com","password":"correct horse"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Tokens.AccessToken != "access-token" {
		t.Fatalf("tokens = %+v", out.Tokens)
	}
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	srv := newAuthServer(&fakeAuthService{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/login", "application/json",
		strings.NewReader(`{"email":"nobody@example.com","password":"whatever"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMeEndpoint(t *testing.T) {
	f := &fakeAuthService{
		user:  &domain.User{ID: uuid.New(), Email: "aziza@example.com", Role: domain.RolePatient, Active: true},
		token: "access-token",
	}
	srv := newAuthServer(f)
	defer srv.Close()

	// Without a bearer token the endpoint is closed.
	resp, err := http.Get(srv.URL + "/me")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	req.Header.Set("Authorization", "Bearer access-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Email != "aziza@example.com" {
		t.Fatalf("email = %q", out.Email)
	}
}

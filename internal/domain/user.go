package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RolePatient:
		return RolePatient, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", &Error{Tag: "invalid_role", Kind: KindValidation, Message: fmt.Sprintf("unknown role %q", s)}
}

type User struct {
	ID           uuid.UUID
	Login        string
	Email        string
	PasswordHash string
	Role         Role
	Verified     bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateUserRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (r *CreateUserRequest) Normalize() {
	r.Login = strings.TrimSpace(r.Login)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Role == "" {
		r.Role = string(RolePatient)
	}
}

func (r *CreateUserRequest) Validate() error {
	if r.Login == "" {
		return &Error{Tag: "invalid_login", Kind: KindValidation, Message: "login is required"}
	}
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return &Error{Tag: "invalid_email", Kind: KindValidation, Message: "a valid email is required"}
	}
	if len(r.Password) < 8 {
		return &Error{Tag: "weak_password", Kind: KindValidation, Message: "password must be at least 8 characters"}
	}
	if _, err := ParseRole(r.Role); err != nil {
		return err
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

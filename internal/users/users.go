// Package users manages student profiles and the accounts behind them.
package users

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"astrixo/admin/internal/authpw"
	"astrixo/admin/internal/rbac"
	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

const Collection = "users"

var ErrPasswordMismatch = errors.New("passwords do not match")

// Profile is the public record of an account, keyed by its uid.
type Profile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	FullName    string    `json:"fullName,omitempty"`
	PhotoBase64 string    `json:"photoBase64,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// DisplayName is the full name, or the email when no name is set.
func (p Profile) DisplayName() string {
	if strings.TrimSpace(p.FullName) != "" {
		return p.FullName
	}
	return p.Email
}

// Accounts creates auth accounts.
type Accounts interface {
	CreateAccount(ctx context.Context, req authpw.CreateAccountRequest) (authpw.Account, error)
}

type CreateRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

type Service struct {
	store    store.Store
	accounts Accounts
}

func NewService(s store.Store, accounts Accounts) *Service {
	return &Service{store: s, accounts: accounts}
}

func profilePath(uid string) string {
	return store.Doc(Collection, uid)
}

// Create validates the request, creates the account and merges a student
// profile for it. The caller's own session is never involved.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Profile, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Password != req.ConfirmPassword {
		return Profile{}, ErrPasswordMismatch
	}
	if len(req.Password) < authpw.MinPasswordLength {
		return Profile{}, authpw.ErrWeakPassword
	}
	if err := util.Validate(req); err != nil {
		var verr *util.ValidationError
		if errors.As(err, &verr) {
			if _, ok := verr.Fields["email"]; ok {
				return Profile{}, authpw.ErrInvalidEmail
			}
		}
		return Profile{}, err
	}

	account, err := s.accounts.CreateAccount(ctx, authpw.CreateAccountRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return Profile{}, err
	}

	if err := s.Ensure(ctx, account, rbac.RoleStudent); err != nil {
		return Profile{}, err
	}
	log.Printf("users: created account %s", account.ID)
	return s.Profile(ctx, account.ID)
}

// Ensure merges the profile of account with the given role.
func (s *Service) Ensure(ctx context.Context, account authpw.Account, role rbac.Role) error {
	fields := store.Fields{
		"email":     authpw.NormalizeEmail(account.Email),
		"role":      string(role),
		"createdAt": store.ServerTimestamp,
	}
	if account.DisplayName != "" {
		fields["fullName"] = account.DisplayName
	}
	if err := s.store.Set(ctx, profilePath(account.ID), fields, true); err != nil {
		return fmt.Errorf("save profile %s: %w", account.ID, err)
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, uid string) (Profile, error) {
	doc, err := s.store.Get(ctx, profilePath(uid))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %s: %w", uid, err)
	}
	var profile Profile
	if err := doc.Decode(&profile); err != nil {
		return Profile{}, err
	}
	profile.UID = doc.ID
	return profile, nil
}

// ProfileOr returns the stored profile, or fallback when it cannot be read.
func (s *Service) ProfileOr(ctx context.Context, uid string, fallback Profile) Profile {
	profile, err := s.Profile(ctx, uid)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("users: %v", err)
		}
		fallback.UID = uid
		return fallback
	}
	if profile.FullName == "" {
		profile.FullName = fallback.FullName
	}
	return profile
}

// List returns every profile, newest first.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	docs, err := s.store.List(ctx, Collection, store.Query{OrderBy: "createdAt", Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		var profile Profile
		if err := doc.Decode(&profile); err != nil {
			log.Printf("users: skip %s: %v", doc.Path, err)
			continue
		}
		profile.UID = doc.ID
		out = append(out, profile)
	}
	return out, nil
}

// Message is the text shown to the admin for a Create failure.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPasswordMismatch):
		return "As senhas não coincidem"
	case errors.Is(err, authpw.ErrEmailInUse):
		return "Este email já está em uso"
	case errors.Is(err, authpw.ErrInvalidEmail):
		return "Email inválido"
	case errors.Is(err, authpw.ErrWeakPassword):
		return "A senha deve ter pelo menos 6 caracteres"
	default:
		return "Erro ao criar conta"
	}
}

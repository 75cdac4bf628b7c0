// Package authpw provides email/password accounts for the console: login,
// server-side account creation and password reset.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"astrixo/admin/internal/auth"
	"astrixo/admin/internal/session"
	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
	"golang.org/x/crypto/bcrypt"
)

const (
	AccountsCollection     = "accounts"
	AccountEmailCollection = "accountEmails"
	MinPasswordLength      = 6
)

var (
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// Account is an auth identity. Its id is the uid of the matching user profile.
type Account struct {
	ID           string    `json:"-"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

// Mailer delivers reset links.
type Mailer interface {
	IsConfigured() bool
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Options struct {
	ResetTTL time.Duration
	ResetURL string
}

// Service provides email/password authentication
type Service struct {
	store    store.Store
	sessions session.Store
	mailer   Mailer
	opts     Options
	now      func() time.Time
}

// NewService creates a new auth service. mailer may be nil.
func NewService(s store.Store, sessions session.Store, mailer Mailer, opts Options) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &Service{store: s, sessions: sessions, mailer: mailer, opts: opts, now: time.Now}
}

// NormalizeEmail lower-cases and trims an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) error {
	if err := util.Validator().Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func emailIndexPath(email string) string {
	return store.Doc(AccountEmailCollection, auth.HashToken(email))
}

func accountPath(id string) string {
	return store.Doc(AccountsCollection, id)
}

// CreateAccountRequest contains account creation parameters
type CreateAccountRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// CreateAccount creates an account without touching any session, so an admin
// can create student accounts and stay signed in as themselves.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error) {
	email := NormalizeEmail(req.Email)
	if err := checkEmail(email); err != nil {
		return Account{}, err
	}
	if len(req.Password) < MinPasswordLength {
		return Account{}, ErrWeakPassword
	}

	if _, err := s.store.Get(ctx, emailIndexPath(email)); err == nil {
		return Account{}, ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return Account{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	account := Account{
		ID:           util.NewID(""),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	err = s.store.Set(ctx, accountPath(account.ID), store.Fields{
		"email":        account.Email,
		"displayName":  account.DisplayName,
		"passwordHash": account.PasswordHash,
		"createdAt":    account.CreatedAt,
	}, false)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	if err := s.store.Set(ctx, emailIndexPath(email), store.Fields{"accountId": account.ID}, false); err != nil {
		return Account{}, fmt.Errorf("index account email: %w", err)
	}
	return account, nil
}

// AccountByEmail returns store.ErrNotFound for unknown emails.
func (s *Service) AccountByEmail(ctx context.Context, email string) (Account, error) {
	doc, err := s.store.Get(ctx, emailIndexPath(NormalizeEmail(email)))
	if err != nil {
		return Account{}, err
	}
	id, _ := doc.Fields["accountId"].(string)
	if id == "" {
		return Account{}, store.ErrNotFound
	}
	return s.Account(ctx, id)
}

func (s *Service) Account(ctx context.Context, id string) (Account, error) {
	doc, err := s.store.Get(ctx, accountPath(id))
	if err != nil {
		return Account{}, err
	}
	var account Account
	if err := doc.Decode(&account); err != nil {
		return Account{}, err
	}
	account.ID = doc.ID
	return account, nil
}

// Login checks an email and password.
func (s *Service) Login(ctx context.Context, email, password string) (Account, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}
	account, err := s.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// SendPasswordReset issues a reset token and mails the link. Unknown emails
// get no token and no error.
func (s *Service) SendPasswordReset(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return "", err
	}
	account, err := s.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// Don't reveal if email exists
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup account: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.sessions.SaveResetToken(ctx, auth.HashToken(token), account.ID, s.opts.ResetTTL); err != nil {
		return "", err
	}

	if s.mailer == nil || !s.mailer.IsConfigured() {
		log.Printf("authpw: email not configured, reset link for %s not sent", account.ID)
		return token, nil
	}
	link := s.opts.ResetURL + "?token=" + token
	name := account.DisplayName
	if name == "" {
		name = account.Email
	}
	if err := s.mailer.SendPasswordResetEmail(account.Email, name, link); err != nil {
		return "", fmt.Errorf("send reset email: %w", err)
	}
	return token, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword sets a new password using a one-time reset token.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" {
		return ErrInvalidResetToken
	}
	if len(req.NewPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	accountID, err := s.sessions.ConsumeResetToken(ctx, auth.HashToken(req.Token))
	if errors.Is(err, session.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.Update(ctx, accountPath(accountID), store.Fields{"passwordHash": string(hash)}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

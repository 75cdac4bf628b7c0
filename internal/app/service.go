package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"astrixo/admin/internal/auth"
	"astrixo/admin/internal/authpw"
	"astrixo/admin/internal/catalog"
	"astrixo/admin/internal/community"
	"astrixo/admin/internal/config"
	"astrixo/admin/internal/rbac"
	"astrixo/admin/internal/session"
	"astrixo/admin/internal/store"
	"astrixo/admin/internal/support"
	"astrixo/admin/internal/users"
	"astrixo/admin/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Email     string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// Deps are the backends the service runs on. Mailer may be nil.
type Deps struct {
	Store    store.Store
	Sessions session.Store
	Mailer   authpw.Mailer
}

type Service struct {
	cfg       config.Config
	store     store.Store
	sessions  session.Store
	mailer    authpw.Mailer
	authz     *rbac.Authorizer
	accounts  *authpw.Service
	users     *users.Service
	catalog   *catalog.Service
	support   *support.Service
	community *community.Service
	badge     *support.Badge
	now       func() time.Time
}

func NewService(cfg config.Config, deps Deps) *Service {
	accounts := authpw.NewService(deps.Store, deps.Sessions, deps.Mailer, authpw.Options{
		ResetTTL: cfg.ResetTTL,
		ResetURL: cfg.ResetURL,
	})
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 12 * time.Hour
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		mailer:    deps.Mailer,
		authz:     rbac.NewAuthorizer(cfg.AdminEmails),
		accounts:  accounts,
		users:     users.NewService(deps.Store, accounts),
		catalog:   catalog.NewService(deps.Store),
		support:   support.NewService(deps.Store),
		community: community.NewService(deps.Store, cfg.ChatHistoryLimit),
		badge:     support.NewBadge(deps.Store),
		now:       time.Now,
	}
}

// Close stops the unread badge subscription.
func (s *Service) Close() {
	s.badge.Close()
}

// UnreadTickets is the sidebar badge count. ok is false until the badge
// feed has loaded.
func (s *Service) UnreadTickets() (count int, ok bool) {
	if !s.badge.Ready() {
		return 0, false
	}
	return s.badge.Count(), true
}

// Bootstrap creates an account for every allow-listed admin that has none,
// using the configured bootstrap password. It does nothing without one.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.BootstrapPassword == "" {
		return nil
	}
	for _, email := range s.cfg.AdminEmails {
		_, err := s.accounts.AccountByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("bootstrap %s: %w", email, err)
		}
		account, err := s.accounts.CreateAccount(ctx, authpw.CreateAccountRequest{
			Email:    email,
			Password: s.cfg.BootstrapPassword,
		})
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", email, err)
		}
		if err := s.users.Ensure(ctx, account, rbac.RoleAdmin); err != nil {
			return fmt.Errorf("bootstrap %s: %w", email, err)
		}
		log.Printf("app: bootstrapped admin account %s", account.ID)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.Ping(ctx); err != nil {
			return fmt.Errorf("session store: %w", err)
		}
	}
	return nil
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// Login checks the credentials and the admin allow-list, then issues an
// access token backed by a stored session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	account, err := s.accounts.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	if err := s.authz.Require(account.Email); err != nil {
		log.Printf("app: login denied for %s", account.ID)
		return Session{}, err
	}
	profile := s.users.ProfileOr(ctx, account.ID, users.Profile{
		Email:    account.Email,
		FullName: account.DisplayName,
	})

	now := s.now().UTC()
	sess := Session{
		UserID:    account.ID,
		UserName:  profile.DisplayName(),
		Email:     account.Email,
		Role:      string(rbac.RoleAdmin),
		JTI:       util.NewID(""),
		ExpiresAt: now.Add(s.cfg.AccessTTL),
	}
	sess.Token, err = auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   sess.UserID,
		Name:  sess.UserName,
		Email: sess.Email,
		Role:  sess.Role,
		JTI:   sess.JTI,
		Exp:   sess.ExpiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	err = s.sessions.SaveSession(ctx, sess.JTI, session.Data{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Name:      sess.UserName,
		Role:      sess.Role,
		CreatedAt: now,
	}, sess.ExpiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// SessionFromToken accepts a token only while its session is stored and its
// email is still on the admin allow-list.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	data, err := s.sessions.LookupSession(ctx, claims.JTI)
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if data.UserID != claims.Sub {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.authz.Require(claims.Email); err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  data.Name,
		Email:     claims.Email,
		Role:      data.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0).UTC(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session) error {
	if err := s.sessions.RevokeSession(ctx, sess.JTI); err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// OnSessionEnd calls fn once when sess is logged out. The returned func
// stops watching.
func (s *Service) OnSessionEnd(sess Session, fn func()) (cancel func()) {
	return s.sessions.Observe(func(event session.Event) {
		if event.Kind == session.EventLogout && event.SessionID == sess.JTI {
			fn()
		}
	})
}

// Author is the chat identity of the signed-in admin.
func (s *Service) Author(ctx context.Context, sess Session) community.Author {
	profile := s.users.ProfileOr(ctx, sess.UserID, users.Profile{
		Email:    sess.Email,
		FullName: sess.UserName,
	})
	return community.Author{
		UserID:   sess.UserID,
		FullName: strings.TrimSpace(profile.FullName),
		Email:    sess.Email,
		Photo:    profile.PhotoBase64,
	}
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.accounts.SendPasswordReset(ctx, email)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.accounts.ResetPassword(ctx, authpw.ResetPasswordRequest{
		Token:       token,
		NewPassword: newPassword,
	})
}

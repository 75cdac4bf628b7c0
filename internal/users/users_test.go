package users

import (
	"context"
	"errors"
	"testing"

	"astrixo/admin/internal/authpw"
	"astrixo/admin/internal/session"
	"astrixo/admin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	accounts := authpw.NewService(s, session.NewMemoryStore(), nil, authpw.Options{})
	return NewService(s, accounts), s
}

func TestCreateWritesStudentProfile(t *testing.T) {
	svc, _ := newService(t)
	profile, err := svc.Create(context.Background(), CreateRequest{
		Email:           " Aluno@Example.COM ",
		Password:        "segredo",
		ConfirmPassword: "segredo",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, profile.UID)
	assert.Equal(t, "aluno@example.com", profile.Email)
	assert.Equal(t, "student", profile.Role)
	assert.False(t, profile.CreatedAt.IsZero())
}

func TestCreateErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateRequest{Email: "bia@example.com", Password: "segredo", ConfirmPassword: "segredo"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     CreateRequest
		want    error
		message string
	}{
		{
			name:    "mismatch",
			req:     CreateRequest{Email: "x@example.com", Password: "segredo", ConfirmPassword: "segredo2"},
			want:    ErrPasswordMismatch,
			message: "As senhas não coincidem",
		},
		{
			name:    "short password",
			req:     CreateRequest{Email: "x@example.com", Password: "123", ConfirmPassword: "123"},
			want:    authpw.ErrWeakPassword,
			message: "A senha deve ter pelo menos 6 caracteres",
		},
		{
			name:    "invalid email",
			req:     CreateRequest{Email: "x@", Password: "segredo", ConfirmPassword: "segredo"},
			want:    authpw.ErrInvalidEmail,
			message: "Email inválido",
		},
		{
			name:    "email in use",
			req:     CreateRequest{Email: "BIA@example.com", Password: "segredo", ConfirmPassword: "segredo"},
			want:    authpw.ErrEmailInUse,
			message: "Este email já está em uso",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.message, Message(err))
		})
	}
	assert.Equal(t, "Erro ao criar conta", Message(errors.New("boom")))
}

func TestCreateMergesExistingProfile(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	profile, err := svc.Create(ctx, CreateRequest{Email: "bia@example.com", Password: "segredo", ConfirmPassword: "segredo"})
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, profilePath(profile.UID), store.Fields{"fullName": "Bia Souza"}, true))
	got, err := svc.Profile(ctx, profile.UID)
	require.NoError(t, err)
	assert.Equal(t, "Bia Souza", got.FullName)
	assert.Equal(t, "student", got.Role)
	assert.Equal(t, "Bia Souza", got.DisplayName())
}

func TestProfileOrFallsBack(t *testing.T) {
	svc, _ := newService(t)
	got := svc.ProfileOr(context.Background(), "uid-1", Profile{Email: "admin@astrixo.com", FullName: "Fabrício"})
	assert.Equal(t, "uid-1", got.UID)
	assert.Equal(t, "Fabrício", got.DisplayName())

	assert.Equal(t, "admin@astrixo.com", Profile{Email: "admin@astrixo.com"}.DisplayName())
}

func TestList(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := svc.Create(ctx, CreateRequest{Email: email, Password: "segredo", ConfirmPassword: "segredo"})
		require.NoError(t, err)
	}
	profiles, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"astrixo/admin/internal/authpw"
	"astrixo/admin/internal/config"
	"astrixo/admin/internal/session"
	"astrixo/admin/internal/store"
	"github.com/stretchr/testify/require"
)

const (
	testAdminEmail    = "admin@astrixo.com"
	testAdminPassword = "segredo123"
)

type testEnv struct {
	service  *Service
	server   *HTTPServer
	handler  http.Handler
	store    store.Store
	sessions *session.MemoryStore
	admin    authpw.Account
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	sessions := session.NewMemoryStore()
	t.Cleanup(func() {
		_ = st.Close()
		_ = sessions.Close()
	})
	return newTestEnvWith(t, st, sessions)
}

func newTestEnvWith(t *testing.T, st store.Store, sessions *session.MemoryStore) *testEnv {
	t.Helper()
	cfg := config.Config{
		JWTSecret:        "test-secret",
		AccessTTL:        time.Hour,
		ResetTTL:         time.Hour,
		AdminEmails:      []string{testAdminEmail},
		ChatHistoryLimit: 50,
		ResetURL:         "http://localhost:5173/reset-password",
	}
	svc := NewService(cfg, Deps{Store: st, Sessions: sessions})
	t.Cleanup(svc.Close)
	admin, err := svc.accounts.CreateAccount(context.Background(), authpw.CreateAccountRequest{
		Email:       testAdminEmail,
		Password:    testAdminPassword,
		DisplayName: "Ana Admin",
	})
	require.NoError(t, err)

	server := NewHTTPServer(svc, "*")
	env := &testEnv{
		service:  svc,
		server:   server,
		handler:  server.Handler(),
		store:    st,
		sessions: sessions,
		admin:    admin,
	}
	sess, err := svc.Login(context.Background(), testAdminEmail, testAdminPassword)
	require.NoError(t, err)
	env.token = sess.Token
	return env
}

// do sends a request with the admin token unless token is overridden.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, e.token, method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), "body=%s", rr.Body.String())
	return payload
}

func seedTicket(t *testing.T, st store.Store, id string, fields store.Fields) {
	t.Helper()
	base := store.Fields{
		"subject":   "Acesso ao curso",
		"message":   "Não consigo acessar a aula 2",
		"userId":    "student-1",
		"userName":  "Bruno",
		"userEmail": "bruno@example.com",
		"status":    "open",
		"createdAt": time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	for k, v := range fields {
		base[k] = v
	}
	require.NoError(t, st.Set(context.Background(), store.Doc("tickets", id), base, false))
}

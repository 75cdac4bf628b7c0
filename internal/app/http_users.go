package app

import (
	"net/http"

	"astrixo/admin/internal/users"
	"github.com/gorilla/mux"
)

func (s *HTTPServer) routeUsers(r *mux.Router) {
	r.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	profile := s.service.users.ProfileOr(r.Context(), session.UserID, users.Profile{
		Email:    session.Email,
		FullName: session.UserName,
	})
	profile.Role = session.Role
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":     profile,
		"displayName": profile.DisplayName(),
	})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.users.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

// handleCreateUser creates a student account. The admin's own session is
// left untouched.
func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body users.CreateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	profile, err := s.service.users.Create(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    profile,
		"message": "Usuário criado com sucesso!",
	})
}

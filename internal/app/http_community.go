package app

import (
	"errors"
	"log"
	"net/http"

	"astrixo/admin/internal/community"
	"github.com/gorilla/mux"
)

// messageView is a chat message with the text the room renders for it.
type messageView struct {
	community.Message
	DisplayText string `json:"displayText"`
}

func messageViews(messages []community.Message) []messageView {
	out := make([]messageView, len(messages))
	for i, msg := range messages {
		out[i] = messageView{Message: msg, DisplayText: msg.DisplayText()}
	}
	return out
}

func (s *HTTPServer) routeCommunity(r *mux.Router) {
	r.HandleFunc("/community/rooms", s.handleListRooms).Methods(http.MethodGet)
	r.HandleFunc("/community/rooms/{categoryId}", s.handleGetRoom).Methods(http.MethodGet)
	r.HandleFunc("/community/rooms/{categoryId}/stream", s.handleRoomStream).Methods(http.MethodGet)
	r.HandleFunc("/community/rooms/{categoryId}/messages", s.handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/community/rooms/{categoryId}/messages", s.handlePostMessage).Methods(http.MethodPost)
	r.HandleFunc("/community/rooms/{categoryId}/messages", s.handleClearRoom).Methods(http.MethodDelete)
	r.HandleFunc("/community/rooms/{categoryId}/messages/{messageId}", s.handleEditMessage).Methods(http.MethodPut)
	r.HandleFunc("/community/rooms/{categoryId}/messages/{messageId}", s.handleDeleteMessage).Methods(http.MethodDelete)
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.service.community.Rooms(r.Context())})
}

func (s *HTTPServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	categoryID := mux.Vars(r)["categoryId"]
	messages, err := s.service.community.Messages(r.Context(), categoryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":     s.service.community.Category(r.Context(), categoryID),
		"messages": messageViews(messages),
	})
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.service.community.Messages(r.Context(), mux.Vars(r)["categoryId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messageViews(messages)})
}

func (s *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	author := s.service.Author(r.Context(), sessionFrom(r))
	msg, err := s.service.community.Post(r.Context(), mux.Vars(r)["categoryId"], author, body.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageView{Message: msg, DisplayText: msg.DisplayText()})
}

func (s *HTTPServer) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	vars := mux.Vars(r)
	author := s.service.Author(r.Context(), sessionFrom(r))
	changed, err := s.service.community.Edit(r.Context(), vars["categoryId"], vars["messageId"], author, body.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed})
}

func (s *HTTPServer) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	author := s.service.Author(r.Context(), sessionFrom(r))
	changed, err := s.service.community.SoftDelete(r.Context(), vars["categoryId"], vars["messageId"], author)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed})
}

func (s *HTTPServer) handleClearRoom(w http.ResponseWriter, r *http.Request) {
	categoryID := mux.Vars(r)["categoryId"]
	result, err := s.service.community.Clear(r.Context(), categoryID)
	if errors.Is(err, community.ErrNothingToClear) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": 0, "message": "O chat já está vazio."})
		return
	}
	if err != nil {
		log.Printf("app: clear room %s: %v", categoryID, err)
		writeError(w, http.StatusInternalServerError, "CLEAR_FAILED", "Erro ao limpar o chat", map[string]any{
			"deleted": result.Deleted,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": result.Deleted, "message": result.Message()})
}

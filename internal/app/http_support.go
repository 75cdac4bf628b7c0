package app

import (
	"fmt"
	"log"
	"net/http"

	"astrixo/admin/internal/support"
	"github.com/gorilla/mux"
)

func (s *HTTPServer) routeTickets(r *mux.Router) {
	r.HandleFunc("/tickets", s.handleListTickets).Methods(http.MethodGet)
	r.HandleFunc("/tickets/unread", s.handleUnreadTickets).Methods(http.MethodGet)
	r.HandleFunc("/tickets/stream", s.handleTicketStream).Methods(http.MethodGet)
	r.HandleFunc("/tickets/{id}", s.handleGetTicket).Methods(http.MethodGet)
	r.HandleFunc("/tickets/{id}", s.handleDeleteTicket).Methods(http.MethodDelete)
	r.HandleFunc("/tickets/{id}/open", s.handleOpenTicket).Methods(http.MethodPost)
	r.HandleFunc("/tickets/{id}/responses", s.handleRespondTicket).Methods(http.MethodPost)
	r.HandleFunc("/tickets/{id}/status", s.handleTicketStatus).Methods(http.MethodPut)
}

func (s *HTTPServer) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	if filter != "" && filter != "all" && !support.Status(filter).Valid() {
		writeServiceError(w, fmt.Errorf("%w: %q", support.ErrInvalidStatus, filter))
		return
	}
	tickets, err := s.service.support.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": support.FilterByStatus(tickets, filter),
		"unread":  support.UnreadCount(tickets),
		"counts":  support.CountByStatus(tickets),
	})
}

// handleUnreadTickets answers from the live badge and reads the store only
// while the badge is still loading.
func (s *HTTPServer) handleUnreadTickets(w http.ResponseWriter, r *http.Request) {
	if count, ok := s.service.UnreadTickets(); ok {
		writeJSON(w, http.StatusOK, map[string]any{"unread": count})
		return
	}
	tickets, err := s.service.support.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": support.UnreadCount(tickets)})
}

func (s *HTTPServer) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.service.support.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleOpenTicket records the admin's read receipt when the user spoke last.
// A failed receipt does not fail the request.
func (s *HTTPServer) handleOpenTicket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ticket, err := s.service.support.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if support.NeedsAdminRead(ticket) {
		if err := s.service.support.MarkAdminRead(r.Context(), id); err != nil {
			log.Printf("app: read receipt for %s: %v", id, err)
		} else {
			read := true
			ticket.AdminRead = &read
		}
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *HTTPServer) handleRespondTicket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	response, err := s.service.support.Respond(r.Context(), mux.Vars(r)["id"], body.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	status := support.Status(body.Status)
	if err := s.service.support.SetStatus(r.Context(), mux.Vars(r)["id"], status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": status, "label": status.Label()})
}

func (s *HTTPServer) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := s.service.support.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Package support holds the ticket inbox: the ticket model, the unread
// policy, ticket mutations and the live inbox and badge feeds.
package support

import (
	"fmt"
	"time"

	"astrixo/admin/internal/store"
)

// Collection is the top-level ticket collection.
const Collection = "tickets"

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	default:
		return false
	}
}

// Label is the console's display name for the status. Unknown values show as open.
func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "Em Atendimento"
	case StatusResolved:
		return "Resolvido"
	case StatusClosed:
		return "Fechado"
	default:
		return "Aberto"
	}
}

const (
	ByAdmin = "admin"
	ByUser  = "user"
)

type Response struct {
	ID        string    `json:"id,omitempty"`
	Message   string    `json:"message"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

func (r Response) fields() map[string]any {
	return map[string]any{
		"id":        r.ID,
		"message":   r.Message,
		"isAdmin":   r.IsAdmin,
		"createdAt": r.CreatedAt,
	}
}

type Ticket struct {
	ID             string     `json:"id"`
	Subject        string     `json:"subject"`
	Message        string     `json:"message"`
	UserID         string     `json:"userId,omitempty"`
	UserName       string     `json:"userName,omitempty"`
	UserEmail      string     `json:"userEmail,omitempty"`
	UserPhoto      string     `json:"userPhoto,omitempty"`
	Status         Status     `json:"status"`
	Responses      []Response `json:"responses,omitempty"`
	AdminRead      *bool      `json:"adminRead,omitempty"`
	UserRead       *bool      `json:"userRead,omitempty"`
	LastResponseBy string     `json:"lastResponseBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt,omitzero"`
	UpdatedAt      time.Time  `json:"updatedAt,omitzero"`
}

// Requester is the name shown for the ticket's author.
func (t Ticket) Requester() string {
	if t.UserName != "" {
		return t.UserName
	}
	return t.UserEmail
}

func (t Ticket) hasResponse(id string) bool {
	for _, resp := range t.Responses {
		if resp.ID == id {
			return true
		}
	}
	return false
}

func DecodeTicket(doc store.Document) (Ticket, error) {
	var ticket Ticket
	if err := doc.Decode(&ticket); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket: %w", err)
	}
	ticket.ID = doc.ID
	return ticket, nil
}

func ticketID(t Ticket) string {
	return t.ID
}

func boolPtr(v bool) *bool {
	return &v
}

// Package community runs the admin side of the category chat rooms.
package community

import (
	"fmt"
	"time"

	"astrixo/admin/internal/store"
)

const (
	DeletedByUser  = "user"
	DeletedByAdmin = "admin"
)

type Message struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	UserPhoto     string    `json:"userPhoto,omitempty"`
	IsAdmin       bool      `json:"isAdmin"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	Edited        bool      `json:"edited,omitempty"`
	Deleted       bool      `json:"deleted,omitempty"`
	DeletedBy     string    `json:"deletedBy,omitempty"`
	DeletedByName string    `json:"deletedByName,omitempty"`
	OriginalText  string    `json:"originalText,omitempty"`
	// Pending marks a local send the store has not delivered yet.
	Pending bool `json:"pending,omitempty"`
}

// DisplayText is what the room shows in place of the message body.
func (m Message) DisplayText() string {
	if !m.Deleted {
		return m.Text
	}
	if m.DeletedBy == DeletedByAdmin {
		name := m.DeletedByName
		if name == "" {
			name = "Admin"
		}
		return fmt.Sprintf("Removida por ADMIN (%s)", name)
	}
	return "Excluída pelo usuário"
}

// Original returns the text as it was before deletion.
func (m Message) Original() string {
	if m.OriginalText != "" {
		return m.OriginalText
	}
	return m.Text
}

func DecodeMessage(doc store.Document) (Message, error) {
	var msg Message
	if err := doc.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	msg.ID = doc.ID
	msg.Pending = false
	return msg, nil
}

// OldestFirst orders messages by creation time. Messages without a server
// timestamp yet count as "now" and sort after every dated message.
func OldestFirst(a, b Message) bool {
	switch {
	case a.CreatedAt.IsZero() && b.CreatedAt.IsZero():
		return a.ID < b.ID
	case a.CreatedAt.IsZero():
		return false
	case b.CreatedAt.IsZero():
		return true
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.ID < b.ID
	}
}

func messageID(m Message) string {
	return m.ID
}

// Author is the admin acting in a room.
type Author struct {
	UserID   string
	FullName string
	Email    string
	Photo    string
}

// DisplayName prefers the profile name and falls back to the email.
func (a Author) DisplayName() string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Email
}

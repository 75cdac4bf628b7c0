package community

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

var (
	ErrEmptyMessage   = errors.New("message text is required")
	ErrSendInFlight   = errors.New("a message is already being sent")
	ErrNotAuthor      = errors.New("only the author can edit a message")
	ErrMessageDeleted = errors.New("message was deleted")
	ErrNothingToClear = errors.New("chat is already empty")
)

// DefaultHistoryLimit caps how many messages a room feed holds.
const DefaultHistoryLimit = 200

type Service struct {
	store        store.Store
	historyLimit int
}

func NewService(s store.Store, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{store: s, historyLimit: historyLimit}
}

func messagePath(categoryID, messageID string) string {
	return store.Doc(MessagesCollection(categoryID), messageID)
}

func (s *Service) historyQuery() store.Query {
	return store.Query{OrderBy: "createdAt", Limit: s.historyLimit}
}

// Messages reads the room history once, oldest first.
func (s *Service) Messages(ctx context.Context, categoryID string) ([]Message, error) {
	docs, err := s.store.List(ctx, MessagesCollection(categoryID), s.historyQuery())
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", categoryID, err)
	}
	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := DecodeMessage(doc)
		if err != nil {
			log.Printf("community: skip %s: %v", doc.Path, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *Service) Get(ctx context.Context, categoryID, messageID string) (Message, error) {
	doc, err := s.store.Get(ctx, messagePath(categoryID, messageID))
	if err != nil {
		return Message{}, err
	}
	return DecodeMessage(doc)
}

// Post stores a message outside any room feed.
func (s *Service) Post(ctx context.Context, categoryID string, author Author, text string) (Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, ErrEmptyMessage
	}
	msg := author.newMessage(trimmed)
	if err := s.write(ctx, categoryID, msg); err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	msg.Pending = false
	return msg, nil
}

func (a Author) newMessage(text string) Message {
	return Message{
		ID:        util.NewID("msg"),
		Text:      text,
		UserID:    a.UserID,
		UserName:  a.DisplayName(),
		UserPhoto: a.Photo,
		IsAdmin:   true,
		Pending:   true,
	}
}

// write stores msg with the server's timestamp.
func (s *Service) write(ctx context.Context, categoryID string, msg Message) error {
	var photo any
	if msg.UserPhoto != "" {
		photo = msg.UserPhoto
	}
	return s.store.Set(ctx, messagePath(categoryID, msg.ID), store.Fields{
		"text":      msg.Text,
		"userId":    msg.UserID,
		"userName":  msg.UserName,
		"isAdmin":   msg.IsAdmin,
		"userPhoto": photo,
		"createdAt": store.ServerTimestamp,
	}, false)
}

// Edit replaces the text of the editor's own message. It reports false
// without writing when the new text is empty or matches the current text
// after trimming.
func (s *Service) Edit(ctx context.Context, categoryID, messageID string, editor Author, newText string) (bool, error) {
	msg, err := s.Get(ctx, categoryID, messageID)
	if err != nil {
		return false, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	if msg.UserID != editor.UserID {
		return false, ErrNotAuthor
	}
	if msg.Deleted {
		return false, ErrMessageDeleted
	}

	trimmed := strings.TrimSpace(newText)
	if newText == "" || trimmed == "" || trimmed == msg.Text {
		return false, nil
	}

	err = s.store.Update(ctx, messagePath(categoryID, messageID), store.Fields{
		"text":   trimmed,
		"edited": true,
	})
	if err != nil {
		return false, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return true, nil
}

// SoftDelete marks the message deleted and keeps its text as originalText.
// Deleting an already deleted message reports false and writes nothing.
func (s *Service) SoftDelete(ctx context.Context, categoryID, messageID string, actor Author) (bool, error) {
	msg, err := s.Get(ctx, categoryID, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", messageID, err)
	}
	if msg.Deleted {
		return false, nil
	}

	own := msg.UserID == actor.UserID
	fields := store.Fields{
		"deleted":       true,
		"deletedBy":     DeletedByAdmin,
		"deletedByName": actor.DisplayName(),
		"originalText":  msg.Text,
	}
	if own {
		fields["deletedBy"] = DeletedByUser
		fields["deletedByName"] = nil
	}
	if err := s.store.Update(ctx, messagePath(categoryID, messageID), fields); err != nil {
		return false, fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return true, nil
}

type ClearResult struct {
	Deleted int `json:"deleted"`
}

func (r ClearResult) Message() string {
	return fmt.Sprintf("%d mensagens excluídas com sucesso!", r.Deleted)
}

// Clear hard-deletes every message in the room. Each batch of up to
// store.MaxBatchSize documents is atomic; a failure returns how many were
// already deleted. An empty room returns ErrNothingToClear.
func (s *Service) Clear(ctx context.Context, categoryID string) (ClearResult, error) {
	docs, err := s.store.List(ctx, MessagesCollection(categoryID), store.Query{})
	if err != nil {
		return ClearResult{}, fmt.Errorf("list messages %s: %w", categoryID, err)
	}
	if len(docs) == 0 {
		return ClearResult{}, ErrNothingToClear
	}

	paths := make([]string, len(docs))
	for i, doc := range docs {
		paths[i] = doc.Path
	}

	var result ClearResult
	for start := 0; start < len(paths); start += store.MaxBatchSize {
		end := min(start+store.MaxBatchSize, len(paths))
		if err := s.store.DeleteBatch(ctx, paths[start:end]); err != nil {
			return result, fmt.Errorf("clear chat %s: %w", categoryID, err)
		}
		result.Deleted += end - start
	}
	return result, nil
}

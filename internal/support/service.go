package support

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

var (
	ErrEmptyResponse = errors.New("response text is required")
	ErrInvalidStatus = errors.New("invalid ticket status")
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

func ticketPath(id string) string {
	return store.Doc(Collection, id)
}

// List returns every ticket, newest first.
func (s *Service) List(ctx context.Context) ([]Ticket, error) {
	docs, err := s.store.List(ctx, Collection, store.Query{})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets := make([]Ticket, 0, len(docs))
	for _, doc := range docs {
		ticket, err := DecodeTicket(doc)
		if err != nil {
			log.Printf("support: skip %s: %v", doc.Path, err)
			continue
		}
		tickets = append(tickets, ticket)
	}
	SortNewestFirst(tickets)
	return tickets, nil
}

func (s *Service) Get(ctx context.Context, id string) (Ticket, error) {
	doc, err := s.store.Get(ctx, ticketPath(id))
	if err != nil {
		return Ticket{}, err
	}
	return DecodeTicket(doc)
}

func (s *Service) MarkAdminRead(ctx context.Context, id string) error {
	if err := s.store.Update(ctx, ticketPath(id), store.Fields{"adminRead": true}); err != nil {
		return fmt.Errorf("mark ticket %s read: %w", id, err)
	}
	return nil
}

// NewResponse validates text and builds the admin response entry, with the id
// and timestamp the stored entry will carry.
func (s *Service) NewResponse(text string) (Response, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{
		ID:        util.NewID("resp"),
		Message:   trimmed,
		IsAdmin:   true,
		CreatedAt: s.now().UTC(),
	}, nil
}

// Respond appends an admin response and moves the ticket to in_progress in a
// single write. Concurrent responses are all kept.
func (s *Service) Respond(ctx context.Context, ticketID, text string) (Response, error) {
	resp, err := s.NewResponse(text)
	if err != nil {
		return Response{}, err
	}
	if err := s.writeResponse(ctx, ticketID, resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (s *Service) writeResponse(ctx context.Context, ticketID string, resp Response) error {
	err := s.store.Update(ctx, ticketPath(ticketID), store.Fields{
		"responses":      store.ArrayAppend(resp.fields()),
		"status":         string(StatusInProgress),
		"lastResponseBy": ByAdmin,
		"userRead":       false,
		"updatedAt":      store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("respond to ticket %s: %w", ticketID, err)
	}
	return nil
}

func (s *Service) SetStatus(ctx context.Context, ticketID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	err := s.store.Update(ctx, ticketPath(ticketID), store.Fields{
		"status":    string(status),
		"updatedAt": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("set ticket %s status: %w", ticketID, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, ticketID string) error {
	if err := s.store.Delete(ctx, ticketPath(ticketID)); err != nil {
		return fmt.Errorf("delete ticket %s: %w", ticketID, err)
	}
	return nil
}

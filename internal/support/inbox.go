package support

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"astrixo/admin/internal/feed"
	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

var ErrNoSelection = errors.New("no ticket selected")

func startTicketFeed(s store.Store, name string) *feed.Feed[Ticket] {
	return feed.Start(s, feed.Options[Ticket]{
		Name:       name,
		Collection: Collection,
		Decode:     DecodeTicket,
		Less:       NewestFirst,
		ID:         ticketID,
	})
}

// View is one consistent rendering of the inbox.
type View struct {
	Tickets  []Ticket     `json:"tickets"`
	Unread   int          `json:"unread"`
	Counts   StatusCounts `json:"counts"`
	Filter   string       `json:"filter"`
	Selected *Ticket      `json:"selected"`
	State    string       `json:"state"`
	Error    string       `json:"error,omitempty"`
}

// Inbox is one admin's live ticket list with a selected ticket. The selected
// ticket is always re-derived from the latest list.
type Inbox struct {
	svc  *Service
	feed *feed.Feed[Ticket]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	selectedID string
	filter     string
}

func NewInbox(svc *Service) *Inbox {
	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		svc:    svc,
		feed:   startTicketFeed(svc.store, "support: inbox"),
		ctx:    ctx,
		cancel: cancel,
		filter: "all",
	}
}

func (i *Inbox) Changes() <-chan struct{} {
	return i.feed.Changes()
}

func (i *Inbox) View() View {
	snap := i.feed.Snapshot()

	i.mu.Lock()
	selectedID, filter := i.selectedID, i.filter
	i.mu.Unlock()

	view := View{
		Tickets: FilterByStatus(snap.Items, filter),
		Unread:  UnreadCount(snap.Items),
		Counts:  CountByStatus(snap.Items),
		Filter:  filter,
		State:   snap.State.String(),
	}
	if snap.Err != nil {
		view.Error = "Erro ao carregar tickets."
	}
	for _, t := range snap.Items {
		if t.ID == selectedID {
			selected := t
			view.Selected = &selected
			break
		}
	}
	return view
}

func (i *Inbox) SetFilter(filter string) error {
	if filter != "" && filter != "all" && !Status(filter).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, filter)
	}
	if filter == "" {
		filter = "all"
	}
	i.mu.Lock()
	i.filter = filter
	i.mu.Unlock()
	return nil
}

// Selected returns the selected ticket as it appears in the latest list.
func (i *Inbox) Selected() (Ticket, bool) {
	i.mu.Lock()
	id := i.selectedID
	i.mu.Unlock()
	if id == "" {
		return Ticket{}, false
	}
	return i.feed.Get(id)
}

// Open selects the ticket and, when the user spoke last and the admin has not
// read it, records the read receipt in the background. Receipt failures are
// only logged.
func (i *Inbox) Open(id string) (Ticket, error) {
	ticket, ok := i.feed.Get(id)
	if !ok {
		return Ticket{}, fmt.Errorf("open ticket %s: %w", id, store.ErrNotFound)
	}

	i.mu.Lock()
	i.selectedID = id
	i.mu.Unlock()

	if NeedsAdminRead(ticket) {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			if err := i.svc.MarkAdminRead(i.ctx, id); err != nil {
				log.Printf("support: read receipt for %s: %v", id, err)
			}
		}()
	}
	return ticket, nil
}

func (i *Inbox) Deselect() {
	i.mu.Lock()
	i.selectedID = ""
	i.mu.Unlock()
}

// Respond answers ticketID, or the selected ticket when ticketID is empty.
// The response shows immediately and is replaced by the stored entry once the
// feed delivers it.
func (i *Inbox) Respond(ctx context.Context, ticketID, text string) (Response, error) {
	id := ticketID
	if id == "" {
		i.mu.Lock()
		id = i.selectedID
		i.mu.Unlock()
	}
	if id == "" {
		return Response{}, ErrNoSelection
	}

	resp, err := i.svc.NewResponse(text)
	if err != nil {
		return Response{}, err
	}

	mutationID := resp.ID
	i.feed.Patch(mutationID, id, func(t Ticket) Ticket {
		t.Responses = append(append([]Response(nil), t.Responses...), resp)
		t.Status = StatusInProgress
		t.LastResponseBy = ByAdmin
		t.UserRead = boolPtr(false)
		return t
	}, func(t Ticket) bool {
		return t.hasResponse(resp.ID)
	})

	if err := i.svc.writeResponse(ctx, id, resp); err != nil {
		i.feed.Discard(mutationID)
		return Response{}, err
	}
	i.feed.Settle(mutationID)
	return resp, nil
}

func (i *Inbox) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	mutationID := util.NewID("status")
	i.feed.Patch(mutationID, id, func(t Ticket) Ticket {
		t.Status = status
		return t
	}, func(t Ticket) bool {
		return t.Status == status
	})

	if err := i.svc.SetStatus(ctx, id, status); err != nil {
		i.feed.Discard(mutationID)
		return err
	}
	i.feed.Settle(mutationID)
	return nil
}

func (i *Inbox) Delete(ctx context.Context, id string) error {
	if err := i.svc.Delete(ctx, id); err != nil {
		return err
	}
	i.mu.Lock()
	if i.selectedID == id {
		i.selectedID = ""
	}
	i.mu.Unlock()
	return nil
}

// Close tears down the feed and waits for pending read receipts. It is idempotent.
func (i *Inbox) Close() {
	i.cancel()
	i.feed.Close()
	i.wg.Wait()
}

package community

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"astrixo/admin/internal/feed"
)

// Room is a live view of one chat room's recent history.
type Room struct {
	svc        *Service
	categoryID string
	feed       *feed.Feed[Message]
}

func (s *Service) OpenRoom(categoryID string) *Room {
	return &Room{
		svc:        s,
		categoryID: categoryID,
		feed: feed.Start(s.store, feed.Options[Message]{
			Name:       "community: " + categoryID,
			Collection: MessagesCollection(categoryID),
			Query:      s.historyQuery(),
			Decode:     DecodeMessage,
			Less:       OldestFirst,
			ID:         messageID,
		}),
	}
}

func (r *Room) CategoryID() string {
	return r.categoryID
}

func (r *Room) Category(ctx context.Context) Category {
	return r.svc.Category(ctx, r.categoryID)
}

func (r *Room) Snapshot() feed.Snapshot[Message] {
	return r.feed.Snapshot()
}

func (r *Room) Changes() <-chan struct{} {
	return r.feed.Changes()
}

func (r *Room) Close() {
	r.feed.Close()
}

// NewComposer returns a composer for author. Each composer allows one send
// in flight at a time.
func (r *Room) NewComposer(author Author) *Composer {
	return &Composer{room: r, author: author}
}

type Composer struct {
	room   *Room
	author Author

	mu      sync.Mutex
	sending bool
}

func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Send posts text as the composer's author. The message shows in the room
// at once and is replaced by the stored copy when the feed delivers it.
func (c *Composer) Send(ctx context.Context, text string) (Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return Message{}, ErrSendInFlight
	}
	c.sending = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	msg := c.author.newMessage(trimmed)
	c.room.feed.Insert(msg.ID, msg)
	if err := c.room.svc.write(ctx, c.room.categoryID, msg); err != nil {
		c.room.feed.Discard(msg.ID)
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	c.room.feed.Settle(msg.ID)
	return msg, nil
}

package support

import (
	"astrixo/admin/internal/feed"
	"astrixo/admin/internal/store"
)

// Badge counts unread tickets from its own subscription, independent of any inbox.
type Badge struct {
	feed *feed.Feed[Ticket]
}

func NewBadge(s store.Store) *Badge {
	return &Badge{feed: startTicketFeed(s, "support: badge")}
}

func (b *Badge) Count() int {
	return UnreadCount(b.feed.Snapshot().Items)
}

func (b *Badge) Ready() bool {
	return b.feed.Snapshot().State != feed.Loading
}

func (b *Badge) Changes() <-chan struct{} {
	return b.feed.Changes()
}

func (b *Badge) Close() {
	b.feed.Close()
}

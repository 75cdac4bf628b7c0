// Package session stores admin sessions and password reset tokens, and
// notifies observers when sessions begin or end.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("token not found or expired")

// Data is what the store keeps for each access token id.
type Data struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type EventKind string

const (
	EventLogin  EventKind = "login"
	EventLogout EventKind = "logout"
)

type Event struct {
	Kind      EventKind
	SessionID string
	UserID    string
}

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	SaveSession(ctx context.Context, sessionID string, data Data, expiresAt time.Time) error
	LookupSession(ctx context.Context, sessionID string) (Data, error)
	RevokeSession(ctx context.Context, sessionID string) error
	SaveResetToken(ctx context.Context, tokenHash, accountID string, ttl time.Duration) error
	// ConsumeResetToken returns the account id once; later calls get ErrNotFound.
	ConsumeResetToken(ctx context.Context, tokenHash string) (string, error)
	Observe(fn func(Event)) (cancel func())
	Ping(ctx context.Context) error
	Close() error
}

// observers fans session events out to registered callbacks.
type observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (o *observers) Observe(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Event))
	}
	id := o.next
	o.next++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) publish(event Event) {
	o.mu.Lock()
	fns := make([]func(Event), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Used when REDIS_URL is empty and in tests.
type MemoryStore struct {
	observers
	mu       sync.Mutex
	sessions map[string]memoryEntry[Data]
	resets   map[string]memoryEntry[string]
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry[Data]),
		resets:   make(map[string]memoryEntry[string]),
		now:      time.Now,
	}
}

func (s *MemoryStore) SaveSession(ctx context.Context, sessionID string, data Data, expiresAt time.Time) error {
	s.mu.Lock()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = s.now().UTC()
	}
	s.sessions[sessionID] = memoryEntry[Data]{value: data, expiresAt: expiresAt}
	s.mu.Unlock()
	s.publish(Event{Kind: EventLogin, SessionID: sessionID, UserID: data.UserID})
	return nil
}

func (s *MemoryStore) LookupSession(ctx context.Context, sessionID string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok || !s.now().Before(entry.expiresAt) {
		delete(s.sessions, sessionID)
		return Data{}, ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) RevokeSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		s.publish(Event{Kind: EventLogout, SessionID: sessionID, UserID: entry.value.UserID})
	}
	return nil
}

func (s *MemoryStore) SaveResetToken(ctx context.Context, tokenHash, accountID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[tokenHash] = memoryEntry[string]{value: accountID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.resets[tokenHash]
	delete(s.resets, tokenHash)
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

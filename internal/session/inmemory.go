package session

import (
	"context"
	"sync"
	"time"
)

// MemoryHistory is the in-memory history backend used when redis is not
// configured. Entries expire lazily on read.
type MemoryHistory struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	users map[string]*userHistory
}

type userHistory struct {
	turns     []Turn
	expiresAt time.Time
}

// NewMemoryHistory creates an in-memory history store.
func NewMemoryHistory(ttl time.Duration, max int) *MemoryHistory {
	if max <= 0 {
		max = 20
	}
	return &MemoryHistory{
		ttl:   ttl,
		max:   max,
		users: make(map[string]*userHistory),
	}
}

func (h *MemoryHistory) Append(_ context.Context, userID string, turn Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	u := h.users[userID]
	if u == nil || (h.ttl > 0 && time.Now().After(u.expiresAt)) {
		u = &userHistory{}
		h.users[userID] = u
	}
	u.turns = append(u.turns, turn)
	if len(u.turns) > h.max {
		u.turns = u.turns[len(u.turns)-h.max:]
	}
	if h.ttl > 0 {
		u.expiresAt = time.Now().Add(h.ttl)
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, userID string) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u := h.users[userID]
	if u == nil {
		return nil, nil
	}
	if h.ttl > 0 && time.Now().After(u.expiresAt) {
		delete(h.users, userID)
		return nil, nil
	}
	out := make([]Turn, len(u.turns))
	copy(out, u.turns)
	return out, nil
}

func (h *MemoryHistory) Clear(_ context.Context, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.users, userID)
	return nil
}

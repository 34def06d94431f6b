package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Exchange is one completed turn of a call: what the customer said (in the
// pivot language) and the suggestion that was produced for it.
type Exchange struct {
	Timestamp  time.Time `json:"timestamp"`
	Transcript string    `json:"transcript"`
	Response   string    `json:"response"`
	ResponseID string    `json:"response_id,omitempty"`
}

// Store keeps the ordered exchange history of every session.
type Store interface {
	// Append adds ex to the end of the session's history.
	Append(ctx context.Context, sessionID string, ex Exchange) error

	// History returns at most limit exchanges, most recent last. The window
	// is a suffix of the full history. limit <= 0 returns everything.
	History(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
}

// ErrUnknownResponse is returned when no exchange carries a response id.
var ErrUnknownResponse = errors.New("unknown response id")

// Lookup resolves a response id back to the exchange it was sent for.
type Lookup interface {
	ExchangeByResponseID(ctx context.Context, responseID string) (sessionID string, ex Exchange, err error)
}

// MemoryStore is a process-local Store. History grows for the life of the
// process; windowing happens only at read time.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Exchange
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Exchange)}
}

// Append never fails. A timestamp older than the session's last exchange is
// raised to it so the sequence stays non-decreasing.
func (m *MemoryStore) Append(_ context.Context, sessionID string, ex Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.sessions[sessionID]
	if n := len(entries); n > 0 && ex.Timestamp.Before(entries[n-1].Timestamp) {
		ex.Timestamp = entries[n-1].Timestamp
	}
	m.sessions[sessionID] = append(entries, ex)
	return nil
}

func (m *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.sessions[sessionID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Exchange, len(entries))
	copy(out, entries)
	return out, nil
}

// Len reports the number of exchanges stored for sessionID.
func (m *MemoryStore) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

// ExchangeByResponseID scans all sessions for the exchange that produced
// responseID.
func (m *MemoryStore) ExchangeByResponseID(_ context.Context, responseID string) (string, Exchange, error) {
	if responseID == "" {
		return "", Exchange{}, ErrUnknownResponse
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for sid, entries := range m.sessions {
		for _, ex := range entries {
			if ex.ResponseID == responseID {
				return sid, ex, nil
			}
		}
	}
	return "", Exchange{}, ErrUnknownResponse
}

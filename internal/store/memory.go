// internal/store/memory.go
//
// In-memory session store for live games.
// Game state lives here between HTTP requests; durable copies go through the
// saves package as encoded snapshots.
//
// Characteristics:
//   - Sessions keyed by a UUID string.
//   - Map guarded by a Mutex (reads refresh last-seen); each Session additionally carries its own mutex,
//     because a *game.Game is single-owner and requests may race on one ID.
//   - Sessions idle longer than a cutoff are dropped by Sweep.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/virusspread/internal/game"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("not found")

// Session is one live game plus the bookkeeping the server needs.
type Session struct {
	mu sync.Mutex

	ID        string
	Game      *game.Game
	OwnerID   string // user ID or anonymous cookie ID
	UserID    string // set when the owner is a signed-in user
	DailyDate string // "YYYY-MM-DD" for daily challenges, empty otherwise
	StartedAt time.Time
	// Recorded is set once the finished level has been written to history.
	Recorded bool
}

// NewSession wraps g with a fresh ID.
func NewSession(g *game.Game, ownerID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Game:      g,
		OwnerID:   ownerID,
		StartedAt: time.Now().UTC(),
	}
}

// Lock serialises access to the session's game.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Store defines the persistence interface for live sessions.
type Store interface {
	// Save persists or updates a session.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete drops a session; unknown IDs are ignored.
	Delete(ctx context.Context, id string) error

	// Sweep drops sessions not saved or fetched within idle and returns
	// their IDs.
	Sweep(ctx context.Context, idle time.Duration) ([]string, error)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.Mutex
	sessions map[string]*Session
	seen     map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		sessions: make(map[string]*Session),
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *memory) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.seen[s.ID] = m.now()
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		m.seen[id] = m.now()
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.seen, id)
	return nil
}

func (m *memory) Sweep(ctx context.Context, idle time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-idle)
	var gone []string
	for id, at := range m.seen {
		if at.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		delete(m.seen, id)
		gone = append(gone, id)
	}
	return gone, nil
}

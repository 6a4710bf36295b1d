package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// DefaultSessionTTL keeps sessions for the process lifetime. A positive TTL enables
// idle eviction.
const DefaultSessionTTL time.Duration = 0

// InMemorySessionStore keeps sessions in a map for the process lifetime.
// Sessions idle for longer than the TTL are evicted; a zero TTL disables eviction.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	ttl      time.Duration
	now      func() time.Time
}

var _ SessionStore = (*InMemorySessionStore)(nil)

// NewInMemorySessionStore creates a session store with the given idle TTL.
func NewInMemorySessionStore(ttl time.Duration) *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*models.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the contact's session, creating a START session for unseen or expired contacts.
func (s *InMemorySessionStore) Get(_ context.Context, contactID string) (*models.Session, error) {
	if contactID == "" {
		return nil, models.ErrEmptyContactID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[contactID]; ok && !s.expired(sess, now) {
		return sess, nil
	}
	sess := models.NewSession(contactID, now)
	s.sessions[contactID] = sess
	slog.Debug("InMemorySessionStore.Get: created session", "contact", contactID)
	return sess, nil
}

// Save copies the session into the stored one so pointers returned by Get stay valid.
func (s *InMemorySessionStore) Save(_ context.Context, sess *models.Session) error {
	if sess == nil || sess.ContactID == "" {
		return models.ErrEmptyContactID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sess.ContactID]; ok {
		if existing != sess {
			*existing = *sess
		}
		return nil
	}
	s.sessions[sess.ContactID] = sess
	return nil
}

// Len returns the number of live sessions.
func (s *InMemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *InMemorySessionStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (s *InMemorySessionStore) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		slog.Debug("InMemorySessionStore.Run: eviction disabled")
		return
	}
	if interval <= 0 {
		interval = s.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("InMemorySessionStore.Run: stopping")
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Info("InMemorySessionStore.Run: evicted idle sessions", "count", n)
			}
		}
	}
}

func (s *InMemorySessionStore) expired(sess *models.Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.UpdatedAt) > s.ttl
}

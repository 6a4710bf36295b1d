package store

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// InMemoryStore is a process-local lead archive and dedup table, used when no database is configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	leads []models.Lead
	dedup map[string]DedupRecord
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{dedup: make(map[string]DedupRecord)}
}

func (s *InMemoryStore) SaveLead(_ context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return nil
}

func (s *InMemoryStore) ListLeads(_ context.Context) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, len(s.leads))
	copy(out, s.leads)
	return out, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, contactID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, seen := s.dedup[messageID]; seen {
		return rec.ProcessedAt == nil, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, ContactID: contactID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

package subscription

import (
	"context"
	"sync"
)

// MemoryStore is a ProfileStore and EventLedger kept in process memory.
// Used in tests and local development without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	events   map[string]EventType
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		events:   make(map[string]EventType),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindByCustomerID(_ context.Context, customerID string) (*Profile, error) {
	if customerID == "" {
		return nil, ErrProfileNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.StripeCustomerID == customerID {
			return &p, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (s *MemoryStore) Save(_ context.Context, profile *Profile) error {
	if profile == nil || profile.UserID == "" {
		return ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = *profile
	return nil
}

func (s *MemoryStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.events[eventID]
	return ok, nil
}

func (s *MemoryStore) Record(_ context.Context, eventID string, eventType EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[eventID] = eventType
	return nil
}

package templates

import (
	"context"
	"sync"
)

// MemoryStore keeps templates in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewMemoryStore creates a store seeded with the given templates
func NewMemoryStore(seed ...Template) *MemoryStore {
	s := &MemoryStore{templates: make(map[string]Template, len(seed))}
	for _, t := range seed {
		s.templates[t.Name] = t
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, name string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[name]
	if !ok || !t.Active {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) Put(_ context.Context, t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[name]; !ok {
		return false, nil
	}
	delete(s.templates, name)
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, useCase string) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterActive(s.templates, useCase), nil
}

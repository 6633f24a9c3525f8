package users

import (
	"context"
	"sync"
)

// MemoryStore keeps accounts in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Record
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Record),
		byEmail: make(map[string]string),
	}
}

func (st *MemoryStore) Create(_ context.Context, rec Record) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.byEmail[rec.Email]; exists {
		return ErrEmailTaken
	}
	st.byID[rec.Identifier] = rec
	st.byEmail[rec.Email] = rec.Identifier
	return nil
}

func (st *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.byID[id]
	if !ok {
		return Record{}, ErrUserNotFound
	}
	return rec, nil
}

func (st *MemoryStore) GetByEmail(_ context.Context, email string) (Record, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	id, ok := st.byEmail[email]
	if !ok {
		return Record{}, ErrUserNotFound
	}
	return st.byID[id], nil
}

func (st *MemoryStore) Close() error {
	return nil
}

package auth

import (
	"maps"
	"sync"
)

// MockStore is an in-memory CredentialStore for tests. A non-nil error field
// makes the matching method fail with it.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]Session

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

func NewMockStore() *MockStore {
	return &MockStore{sessions: map[string]Session{}}
}

func (m *MockStore) Store(session *Session) error {
	switch {
	case m.StoreError != nil:
		return m.StoreError
	case session == nil || session.Name == "":
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	m.sessions[session.Name] = *session
	m.mu.Unlock()
	return nil
}

func (m *MockStore) Retrieve(name string) (*Session, error) {
	switch {
	case m.RetrieveError != nil:
		return nil, m.RetrieveError
	case name == "":
		return nil, ErrInvalidCredentials
	}
	m.mu.RLock()
	s, ok := m.sessions[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &s, nil
}

func (m *MockStore) List() ([]*Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	snapshot := maps.Clone(m.sessions)
	m.mu.RUnlock()

	out := make([]*Session, 0, len(snapshot))
	for _, s := range snapshot {
		out = append(out, &s)
	}
	return out, nil
}

func (m *MockStore) Delete(name string) error {
	switch {
	case m.DeleteError != nil:
		return m.DeleteError
	case name == "":
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.sessions, name)
	return nil
}

func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[name]
	return ok
}

// Count reports how many sessions are held
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// NewMockManager wires a Manager to a single fresh MockStore
func NewMockManager() (*Manager, *MockStore) {
	s := NewMockStore()
	return NewManagerWithStores(s), s
}

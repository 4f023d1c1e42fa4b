package auth

import (
	"sync"
)

// MockStore implements CredentialStore in memory for tests
type MockStore struct {
	creds map[string]*Credential
	mu    sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{
		creds: make(map[string]*Credential),
	}
}

func (m *MockStore) Store(cred *Credential) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cred == nil || cred.Backend == "" {
		return ErrInvalidCredentials
	}

	c := *cred
	m.creds[cred.Backend] = &c
	return nil
}

func (m *MockStore) Retrieve(backend string) (*Credential, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if backend == "" {
		return nil, ErrInvalidCredentials
	}

	cred, exists := m.creds[backend]
	if !exists {
		return nil, ErrCredentialsNotFound
	}

	c := *cred
	return &c, nil
}

func (m *MockStore) List() ([]*Credential, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	creds := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		c := *cred
		creds = append(creds, &c)
	}
	return creds, nil
}

func (m *MockStore) Delete(backend string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if backend == "" {
		return ErrInvalidCredentials
	}
	if _, exists := m.creds[backend]; !exists {
		return ErrCredentialsNotFound
	}

	delete(m.creds, backend)
	return nil
}

func (m *MockStore) Exists(backend string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.creds[backend]
	return exists
}

// Count returns the number of stored credentials
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.creds)
}

// NewMockManager creates a Manager with a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}

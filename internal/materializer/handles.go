package materializer

import (
	"sync"

	"github.com/google/uuid"

	"imgscraper/pkg/models"
)

// HandleStore keeps fetched image bytes behind revocable local handles
type HandleStore struct {
	mu      sync.Mutex
	handles map[string]models.ImageData
	created int
	revoked int
}

// NewHandleStore creates an empty store
func NewHandleStore() *HandleStore {
	return &HandleStore{handles: make(map[string]models.ImageData)}
}

// Create stores data and returns its handle
func (s *HandleStore) Create(data models.ImageData) string {
	id := "blob:" + uuid.NewString()

	s.mu.Lock()
	s.handles[id] = data
	s.created++
	s.mu.Unlock()
	return id
}

// Open returns the data behind a live handle
func (s *HandleStore) Open(id string) (models.ImageData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.handles[id]
	return data, ok
}

// Revoke releases a handle. Revoking twice, or an unknown id, does nothing.
func (s *HandleStore) Revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[id]; ok {
		delete(s.handles, id)
		s.revoked++
	}
}

// RevokeAll releases every live handle
func (s *HandleStore) RevokeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.handles)
	s.revoked += n
	s.handles = make(map[string]models.ImageData)
	return n
}

// Live is the number of handles not yet revoked
func (s *HandleStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Created is the total number of handles ever created
func (s *HandleStore) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

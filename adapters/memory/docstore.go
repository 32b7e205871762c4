// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/linkside/gateway/ports"
)

// DocStore is an in-memory implementation of ports.DocumentStore.
// It counts calls per operation and can be forced to fail, so tests can
// assert "the store was not touched" and exercise degraded paths.
type DocStore struct {
	mu          sync.RWMutex
	collections map[string][]ports.Document
	nextID      int
	calls       map[string]int
	err         error
}

// NewDocStore creates a new in-memory document store.
func NewDocStore() *DocStore {
	return &DocStore{
		collections: make(map[string][]ports.Document),
		calls:       make(map[string]int),
	}
}

// Find returns documents matching the filter by field equality.
func (s *DocStore) Find(ctx context.Context, collection string, filter ports.Filter) ([]ports.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["find"]++
	if s.err != nil {
		return nil, s.err
	}

	var result []ports.Document
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			result = append(result, clone(doc))
		}
	}
	return result, nil
}

// Create stores a document, assigning an "id" if absent.
func (s *DocStore) Create(ctx context.Context, collection string, doc ports.Document) (ports.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["create"]++
	if s.err != nil {
		return nil, s.err
	}

	stored := clone(doc)
	if _, ok := stored["id"]; !ok {
		s.nextID++
		stored["id"] = "doc-" + strconv.Itoa(s.nextID)
	}
	s.collections[collection] = append(s.collections[collection], stored)
	return clone(stored), nil
}

// Update applies a partial patch to a document by id.
func (s *DocStore) Update(ctx context.Context, collection, id string, patch ports.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["update"]++
	if s.err != nil {
		return s.err
	}

	for _, doc := range s.collections[collection] {
		if doc["id"] == id {
			for k, v := range patch {
				doc[k] = v
			}
			return nil
		}
	}
	return nil
}

// SetError forces all subsequent operations to fail with err.
// Pass nil to restore normal behavior.
func (s *DocStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many times an operation ("find", "create",
// "update") ran (for testing).
func (s *DocStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Len returns the document count in a collection (for testing).
func (s *DocStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Clear removes all documents and resets counters (for testing).
func (s *DocStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string][]ports.Document)
	s.calls = make(map[string]int)
	s.nextID = 0
}

func matches(doc ports.Document, filter ports.Filter) bool {
	for k, want := range filter {
		if doc[k] != want {
			return false
		}
	}
	return true
}

func clone(doc ports.Document) ports.Document {
	out := make(ports.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocStore)(nil)

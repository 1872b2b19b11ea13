package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. It backs tests and local
// development; data dies with the process.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) GetDocument(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, NewNotFoundError(collection, id)
	}
	return copyDocument(doc)
}

func (s *MemoryStore) QueryDocuments(_ context.Context, collection string, filters map[string]interface{}) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Document
	for _, doc := range s.collections[collection] {
		if !matches(doc, filters) {
			continue
		}
		copied, err := copyDocument(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
	}
	return result, nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, collection string, doc Document) (string, error) {
	stored, err := copyDocument(doc)
	if err != nil {
		return "", err
	}
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	if _, exists := s.collections[collection][id]; exists {
		return "", fmt.Errorf("document %s/%s already exists", collection, id)
	}
	s.collections[collection][id] = stored
	return id, nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, collection, id string, doc Document) error {
	stored, err := copyDocument(doc)
	if err != nil {
		return err
	}
	stored["id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return NewNotFoundError(collection, id)
	}
	s.collections[collection][id] = stored
	return nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return NewNotFoundError(collection, id)
	}
	delete(s.collections[collection], id)
	return nil
}

// Close clears all collections.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]map[string]Document)
	return nil
}

// copyDocument round-trips through JSON so callers never share memory with
// the store and values carry the same types every backend would return.
func copyDocument(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var copied Document
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return copied, nil
}

func matches(doc Document, filters map[string]interface{}) bool {
	for field, want := range filters {
		got, ok := doc[field]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// looseEqual compares a stored value with a filter value across the type
// drift JSON round-tripping introduces (ints become float64).
func looseEqual(got, want interface{}) bool {
	if reflect.DeepEqual(got, want) {
		return true
	}
	gf, gok := asFloat(got)
	wf, wok := asFloat(want)
	return gok && wok && gf == wf
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Package memory is an in-memory object store used in tests and
// single-process experiments.
package memory

import (
	"context"
	"sync"

	"github.com/oarepo/ldn-inbox/internal/storage"
)

// Store is an in-memory storage.ObjectStore.
type Store struct {
	mu      sync.RWMutex
	items   map[string]*storage.Item
	handles map[string]string // handle -> item id
	urls    map[string]string // persistent-identifier url -> handle
}

var _ storage.ObjectStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		items:   make(map[string]*storage.Item),
		handles: make(map[string]string),
		urls:    make(map[string]string),
	}
}

// Put inserts or replaces an item and registers its handle.
func (s *Store) Put(item *storage.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = copyItem(item)
	if item.Handle != "" {
		s.handles[item.Handle] = item.ID
	}
}

// RegisterURL binds a persistent-identifier URL to a handle.
func (s *Store) RegisterURL(url, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[url] = handle
}

// FindByID implements storage.ObjectStore.
func (s *Store) FindByID(ctx context.Context, id string) (*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

// ResolveToHandle implements storage.ObjectStore.
func (s *Store) ResolveToHandle(ctx context.Context, url string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.urls[url], nil
}

// ResolveHandle implements storage.ObjectStore.
func (s *Store) ResolveHandle(ctx context.Context, handle string) (*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.handles[handle]
	if !ok {
		return nil, nil
	}
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

// Begin implements storage.ObjectStore.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	return &memTx{store: s}, nil
}

type memTx struct {
	store   *Store
	pending []*storage.Item
}

func (t *memTx) Update(ctx context.Context, item *storage.Item) error {
	t.pending = append(t.pending, copyItem(item))
	return nil
}

func (t *memTx) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, item := range t.pending {
		t.store.items[item.ID] = item
	}
	t.pending = nil
	return nil
}

func (t *memTx) Rollback() error {
	t.pending = nil
	return nil
}

func copyItem(item *storage.Item) *storage.Item {
	cp := *item
	cp.Metadata = make([]storage.MetadataValue, len(item.Metadata))
	copy(cp.Metadata, item.Metadata)
	return &cp
}

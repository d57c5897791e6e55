// Package store holds the resources served by the hub and fans out their
// changes to subscribers.
package store

import (
	"encoding/json"
	"sync"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

// UpdateType tells subscribers what happened to a resource.
type UpdateType string

const (
	UpdateChanged UpdateType = "changed"
	UpdateGone    UpdateType = "gone"
)

// Update is published for every successful write.
type Update struct {
	Type     UpdateType
	Resource protocol.Resource
	Content  json.RawMessage
}

// Backend persists resource documents. Implementations need not be safe for
// concurrent use; Store serializes access.
type Backend interface {
	Get(res protocol.Resource) (json.RawMessage, bool, error)
	Put(res protocol.Resource, content json.RawMessage) error
	Delete(res protocol.Resource) (bool, error)
	List(t protocol.ResourceType) ([]string, error)
	Close() error
}

// Store is the thread-safe resource store for the hub.
type Store struct {
	mu          sync.RWMutex
	backend     Backend
	subscribers map[chan Update]struct{}
}

// New creates a Store on top of backend.
func New(backend Backend) *Store {
	return &Store{
		backend:     backend,
		subscribers: make(map[chan Update]struct{}),
	}
}

// Get returns the stored document for res.
func (s *Store) Get(res protocol.Resource) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Get(res)
}

// Exists reports whether res is stored.
func (s *Store) Exists(res protocol.Resource) (bool, error) {
	_, ok, err := s.Get(res)
	return ok, err
}

// List returns the uuids stored for t.
func (s *Store) List(t protocol.ResourceType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.List(t)
}

// Put stores content for res and notifies subscribers with a changed update.
func (s *Store) Put(res protocol.Resource, content json.RawMessage) error {
	if !json.Valid(content) {
		return errors.New(errors.ErrCodeInvalidInput, "resource content is not valid JSON").
			WithDetail("resource", res.String())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Put(res, content); err != nil {
		return err
	}
	s.broadcast(Update{Type: UpdateChanged, Resource: res, Content: content})
	return nil
}

// Delete removes res and notifies subscribers with a gone update. It reports
// false if res did not exist.
func (s *Store) Delete(res protocol.Resource) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.backend.Delete(res)
	if err != nil || !ok {
		return ok, err
	}
	s.broadcast(Update{Type: UpdateGone, Resource: res})
	return true, nil
}

// broadcast must be called with the write lock held, which keeps updates for
// one resource in write order.
func (s *Store) broadcast(u Update) {
	for ch := range s.subscribers {
		ch <- u
	}
}

// Subscribe returns a channel that receives every update. The consumer must
// keep draining it until Unsubscribe.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 64)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Close closes every subscriber channel and the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Update]struct{})
	return s.backend.Close()
}

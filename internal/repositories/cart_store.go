package repositories

import (
	"encoding/json"
	"fmt"
	"sync"

	"kasir/internal/models"
)

// CartStore is the session-scoped key-value collaborator holding live carts.
// Keys are opaque session identifiers issued by the web layer.
type CartStore interface {
	// Get returns the cart stored under the session key, or (nil, nil) when
	// the session has no cart yet.
	Get(sessionKey string) (*models.Cart, error)
	Save(sessionKey string, cart *models.Cart) error
	Delete(sessionKey string) error
}

// MemoryCartStore is an in-memory CartStore. Carts are stored as JSON so a
// caller can never mutate a stored cart through a retained pointer.
type MemoryCartStore struct {
	carts map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryCartStore creates a new instance of MemoryCartStore.
func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{
		carts: make(map[string][]byte),
	}
}

// Get returns the cart stored under the session key.
func (s *MemoryCartStore) Get(sessionKey string) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.carts[sessionKey]
	if !ok {
		return nil, nil
	}
	var cart models.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart for session %s: %w", sessionKey, err)
	}
	return &cart, nil
}

// Save stores the cart under the session key.
func (s *MemoryCartStore) Save(sessionKey string, cart *models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart for session %s: %w", sessionKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[sessionKey] = raw
	return nil
}

// Delete removes the cart stored under the session key, if any.
func (s *MemoryCartStore) Delete(sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionKey)
	return nil
}

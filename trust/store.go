// Package trust verifies detached ed25519 signatures on plugin modules
// before the host opens them.
package trust

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrKeyNotFound is returned when a key ID has no public key in the store.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnsigned is returned when a module has no signature file.
	ErrUnsigned = errors.New("module is not signed")
	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("signature verification failed")
)

// KeyStore holds the public keys trusted to sign modules.
type KeyStore interface {
	// PublicKey returns the key stored under id, or an error wrapping
	// ErrKeyNotFound.
	PublicKey(id string) (ed25519.PublicKey, error)
	// SetPublicKey stores key under id, replacing any previous key.
	SetPublicKey(id string, key ed25519.PublicKey) error
	// ListKeys returns every stored key ID.
	ListKeys() ([]string, error)
}

// MemoryStore is an in-memory KeyStore.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]ed25519.PublicKey)}
}

func (m *MemoryStore) PublicKey(id string) (ed25519.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return append(ed25519.PublicKey(nil), key...), nil
}

func (m *MemoryStore) SetPublicKey(id string, key ed25519.PublicKey) error {
	if id == "" {
		return errors.New("key ID cannot be empty")
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(key))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[id] = append(ed25519.PublicKey(nil), key...)
	return nil
}

func (m *MemoryStore) ListKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.keys))
	for id := range m.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

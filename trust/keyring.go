package trust

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"

	"github.com/99designs/keyring"
)

// DefaultService is the keyring service name used when none is configured.
const DefaultService = "plughost"

// KeyringConfig selects the OS keyring that holds trusted keys.
type KeyringConfig struct {
	// Service is the keyring service name. Defaults to DefaultService.
	Service string
	// Backends restricts the keyring backends that may be used, e.g.
	// "keychain", "secret-service", "wincred" or "file". Empty allows all.
	Backends []string
	// FileDir is the directory used by the encrypted file backend.
	FileDir string
	// FilePassword unlocks the file backend. Prompting is not supported.
	FilePassword string
}

// KeyringStore implements KeyStore on top of the OS keyring.
// Keys are stored as PEM encoded PKIX public keys.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyring opens the keyring described by cfg.
func OpenKeyring(cfg KeyringConfig) (*KeyringStore, error) {
	service := cfg.Service
	if service == "" {
		service = DefaultService
	}

	kcfg := keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
		FileDir:                  cfg.FileDir,
	}
	for _, b := range cfg.Backends {
		kcfg.AllowedBackends = append(kcfg.AllowedBackends, keyring.BackendType(b))
	}
	if cfg.FilePassword != "" {
		password := cfg.FilePassword
		kcfg.FilePasswordFunc = keyring.FixedStringPrompt(password)
	}

	ring, err := keyring.Open(kcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// PublicKey retrieves an ed25519 public key from the keyring.
func (k *KeyringStore) PublicKey(id string) (ed25519.PublicKey, error) {
	item, err := k.ring.Get(id)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
		}
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}
	return ParsePublicKeyPEM(item.Data)
}

// SetPublicKey stores an ed25519 public key in the keyring.
func (k *KeyringStore) SetPublicKey(id string, key ed25519.PublicKey) error {
	if id == "" {
		return errors.New("key ID cannot be empty")
	}
	data, err := EncodePublicKeyPEM(key)
	if err != nil {
		return err
	}

	err = k.ring.Set(keyring.Item{
		Key:         id,
		Data:        data,
		Label:       "plughost module signing key " + id,
		Description: "ed25519 public key",
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

// ListKeys returns all key IDs stored in the keyring.
func (k *KeyringStore) ListKeys() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

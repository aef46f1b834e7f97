// Package secrets keeps the completion API key and the store DSN in the OS
// credential store so they need not live in the environment.
package secrets

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName is the credential store namespace.
const ServiceName = "sorgu"

const (
	KeyAPIKey   = "completion_api_key"
	KeyStoreDSN = "store_dsn"
)

var ErrNotFound = errors.New("secret not found")

type Store struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// Open opens the platform credential store. Plain-file backends are never
// used.
func Open() (*Store, error) {
	var backends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		backends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		backends = []keyring.BackendType{keyring.WinCredBackend}
	default:
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: backends,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return New(ring), nil
}

func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func (s *Store) Save(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("secret %s is empty", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

// Load returns ErrNotFound when the key is absent or empty.
func (s *Store) Load(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if len(item.Data) == 0 {
		return "", ErrNotFound
	}
	return string(item.Data), nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Fill sets *target from the store when it is empty. A missing secret
// leaves it empty.
func (s *Store) Fill(key string, target *string) error {
	if strings.TrimSpace(*target) != "" {
		return nil
	}
	value, err := s.Load(key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	*target = value
	return nil
}

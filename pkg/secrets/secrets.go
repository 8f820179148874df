package secrets

import (
	"context"
	"errors"
	"sync"

	"support-chat/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

var (
	defaultManager Manager
	mu             sync.RWMutex
)

// ErrManagerNotInitialized is returned by the package helpers before Init
var ErrManagerNotInitialized = errors.New("secrets manager not initialized")

// Init creates the default secrets manager
func Init(cfg VaultConfig, log *logger.Logger) error {
	manager, err := NewVaultManager(cfg, log)
	if err != nil {
		return err
	}
	SetManager(manager)
	return nil
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	m := current()
	if m == nil {
		return "", ErrManagerNotInitialized
	}
	return m.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	m := current()
	if m == nil {
		return defaultValue
	}
	return m.GetSecretWithDefault(ctx, key, defaultValue)
}

// SetManager replaces the default manager (primarily used for testing)
func SetManager(manager Manager) {
	mu.Lock()
	defer mu.Unlock()
	defaultManager = manager
}

func current() Manager {
	mu.RLock()
	defer mu.RUnlock()
	return defaultManager
}

// Package security holds small, self-contained helpers the pool and
// sanitizer depend on: OS keyring passphrase lookup and secure byte wiping.
package security

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used for keyring entries.
const KeyringService = "ssh-control-mcp"

// KeyringStore provides OS keyring integration (macOS Keychain, Linux Secret
// Service, Windows Credential Manager) for SSH key passphrases, so a caller
// need not put a plaintext passphrase in the target configuration.
type KeyringStore struct {
	mu      sync.RWMutex
	enabled bool
}

// NewKeyringStore probes the OS keyring and disables itself if unavailable
// (e.g. headless CI with no Secret Service running).
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{enabled: true}

	const probeKey = "__probe__"
	if err := keyring.Set(KeyringService, probeKey, "probe"); err != nil {
		slog.Debug("keyring not available, passphrase lookup disabled", slog.String("error", err.Error()))
		ks.enabled = false
		return ks
	}
	_ = keyring.Delete(KeyringService, probeKey)
	return ks
}

// IsEnabled reports whether the keyring backend is usable.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// StoreSSHPassphrase stores a key's passphrase under keyPath.
func (ks *KeyringStore) StoreSSHPassphrase(keyPath string, passphrase []byte) error {
	if !ks.IsEnabled() {
		return fmt.Errorf("keyring not available")
	}
	encoded := base64.StdEncoding.EncodeToString(passphrase)
	return keyring.Set(KeyringService, keyringKey(keyPath), encoded)
}

// GetSSHPassphrase retrieves a previously stored passphrase for keyPath.
// A missing entry returns (nil, nil), not an error.
func (ks *KeyringStore) GetSSHPassphrase(keyPath string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, fmt.Errorf("keyring not available")
	}
	encoded, err := keyring.Get(KeyringService, keyringKey(keyPath))
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get ssh passphrase: %w", err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// DeleteSSHPassphrase removes a stored passphrase; deleting an absent entry
// is not an error.
func (ks *KeyringStore) DeleteSSHPassphrase(keyPath string) error {
	if !ks.IsEnabled() {
		return fmt.Errorf("keyring not available")
	}
	if err := keyring.Delete(KeyringService, keyringKey(keyPath)); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("delete ssh passphrase: %w", err)
	}
	return nil
}

func keyringKey(keyPath string) string {
	return "ssh-passphrase:" + keyPath
}

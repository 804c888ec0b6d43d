package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Role is the access level granted by an API key.
type Role string

// Possible roles
const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// ErrInvalidAPIKey indicates the presented key matches no known hash.
var ErrInvalidAPIKey = errors.New("invalid API key")

// keysetFile is the on-disk JSON shape: bcrypt hashes grouped by role.
// Raw keys never touch disk.
type keysetFile struct {
	ClientKeys []string `json:"client_keys"`
	AdminKeys  []string `json:"admin_keys"`
}

// KeySet verifies presented API keys against bcrypt hashes loaded from
// a file. Refresh re-reads the file so keys rotate without a restart.
type KeySet struct {
	mu           sync.RWMutex
	clientHashes []string
	adminHashes  []string

	path     string
	verifier PasswordVerifier
	logger   *slog.Logger
}

// NewKeySetFromFile loads the keyset file and returns a KeySet backed
// by it.
func NewKeySetFromFile(path string, verifier PasswordVerifier, logger *slog.Logger) (*KeySet, error) {
	if verifier == nil {
		verifier = NewBcryptVerifier()
	}
	if logger == nil {
		logger = slog.Default()
	}

	k := &KeySet{
		path:     path,
		verifier: verifier,
		logger:   logger,
	}
	if err := k.Refresh(); err != nil {
		return nil, err
	}
	return k, nil
}

// Refresh re-reads the keyset file. On failure the previous keys stay
// in effect.
func (k *KeySet) Refresh() error {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("failed to read keyset file %s: %w", k.path, err)
	}

	var file keysetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse keyset file %s: %w", k.path, err)
	}

	if len(file.ClientKeys) == 0 && len(file.AdminKeys) == 0 {
		return fmt.Errorf("keyset file %s contains no keys", k.path)
	}

	k.mu.Lock()
	k.clientHashes = file.ClientKeys
	k.adminHashes = file.AdminKeys
	k.mu.Unlock()

	k.logger.Info("API keyset loaded",
		"client_keys", len(file.ClientKeys),
		"admin_keys", len(file.AdminKeys))
	return nil
}

// RefreshEvery re-reads the keyset file on the given interval until the
// context is cancelled. Refresh failures are logged and the previous
// keys stay in effect.
func (k *KeySet) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Refresh(); err != nil {
				k.logger.Error("failed to refresh API keyset", "error", err)
			}
		}
	}
}

// Verify checks the presented key against every known hash. It returns
// the granted role and the key's owner hash, the stable identifier that
// job records carry. Admin hashes are checked first so a key present in
// both groups gets its stronger role.
func (k *KeySet) Verify(rawKey string) (Role, string, error) {
	if rawKey == "" {
		return "", "", ErrInvalidAPIKey
	}

	k.mu.RLock()
	adminHashes := k.adminHashes
	clientHashes := k.clientHashes
	k.mu.RUnlock()

	for _, hash := range adminHashes {
		if k.verifier.Compare(hash, rawKey) == nil {
			return RoleAdmin, OwnerHash(rawKey), nil
		}
	}
	for _, hash := range clientHashes {
		if k.verifier.Compare(hash, rawKey) == nil {
			return RoleClient, OwnerHash(rawKey), nil
		}
	}

	return "", "", ErrInvalidAPIKey
}

// OwnerHash derives the stable owner identifier for a raw API key.
// Job ownership needs an equality-comparable digest, so this is a plain
// SHA-256 rather than bcrypt.
func OwnerHash(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

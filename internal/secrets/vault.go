// Package secrets holds credentials that may be rotated while Substrate runs.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/nice-bills/substrate/internal/config"
)

// KeyAdminTokenHash is the bcrypt hash guarding privileged routes.
const KeyAdminTokenHash = "admin_token_hash"

// Loader retrieves the current secret values.
type Loader func() (map[string]string, error)

// ConfigLoader reads secrets from the configuration hierarchy on every call,
// so editing substrate.yaml or the environment and reloading picks them up.
func ConfigLoader(load func() (*config.Config, error)) Loader {
	return func() (map[string]string, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		return map[string]string{KeyAdminTokenHash: cfg.Auth.AdminTokenHash}, nil
	}
}

// Vault holds secret values in memory and swaps them atomically on reload.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Getter binds Get to one key.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
}

// Reload calls the loader and swaps in the new values.
// On error the existing values are kept.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}

// Redacted returns a masked form of the secret suitable for logs.
func (v *Vault) Redacted(key string) string {
	val := v.Get(key)
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}

// Watch reloads the vault each time a signal arrives on sig until ctx ends.
func (v *Vault) Watch(ctx context.Context, sig <-chan os.Signal, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			if err := v.Reload(); err != nil {
				log.Error("secrets reload failed; keeping previous values", "signal", s.String(), "error", err)
				continue
			}
			log.Info("secrets reloaded", "signal", s.String(), "admin_token_hash", v.Redacted(KeyAdminTokenHash))
		}
	}
}

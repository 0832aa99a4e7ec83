// Package localstate persists small client-side values (session blobs, demo identity) across process restarts.
package localstate

import (
	"context"
	"errors"
	"fmt"

	"resultmarketing-crm/client/internal/config"
)

// Keys used by the session store. Namespaced so they can share a store with other clients.
const (
	// KeyAuthSession holds the persisted live BaaS session (JSON).
	KeyAuthSession = "resultmarketing-auth"
	// KeyDemoUser holds the demo identity (JSON).
	KeyDemoUser = "resultmarketing-demo-user"
	// KeyDemoPhone holds the phone number of the last demo code request.
	KeyDemoPhone = "resultmarketing-demo-phone"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("localstate: store closed")

// Store is a string key/value store. Get reports ok false when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open returns the Store selected by cfg.LocalStateDriver.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("localstate: nil config")
	}
	switch cfg.LocalStateDriver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.LocalStatePath)
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("localstate: unknown driver %q", cfg.LocalStateDriver)
	}
}

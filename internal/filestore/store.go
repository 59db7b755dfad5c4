// Package filestore defines the interface protodb publishes manifests
// through.
//
// All providers (local directory, MinIO) implement the Store interface and
// register themselves with Register from an init function. Callers depend
// only on this package and open a store with Open.
//
// Usage:
//
//	cfg := filestore.LocalConfig("./out")
//	store, err := filestore.Open(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.Put(ctx, "protodb.json", r, size, "application/json")
package filestore

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/koustreak/protodb/internal/errs"
)

// Store is the single interface all file storage providers must implement.
// Keys are slash-separated paths relative to the store root or bucket.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// Put writes size bytes from r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// Get opens a streaming handle to the object at key.
	// The caller MUST call Object.Close() after reading.
	Get(ctx context.Context, key string) (Object, error)

	// Stat returns metadata for the object at key without reading it.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
}

// Opener opens a Store for cfg.
type Opener func(ctx context.Context, cfg *Config) (Store, error)

var (
	providers = make(map[Provider]Opener)
	mu        sync.RWMutex
)

// Register makes a provider available to Open.
func Register(p Provider, fn Opener) {
	mu.Lock()
	defer mu.Unlock()
	providers[p] = fn
}

// Open returns a Store from the provider registered for cfg.Provider.
func Open(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "nil filestore config")
	}

	mu.RLock()
	fn, ok := providers[cfg.Provider]
	mu.RUnlock()

	if !ok {
		return nil, errs.Newf(errs.ErrKindConfig, "unsupported filestore provider %q", string(cfg.Provider))
	}
	return fn(ctx, cfg)
}

// Providers lists the registered provider names in sorted order.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(providers))
	for p := range providers {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

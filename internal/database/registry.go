package database

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/protodb/internal/errs"
)

// Opener opens a single catalog connection for cfg.
type Opener func(ctx context.Context, cfg *Config) (DB, error)

var (
	registry = make(map[Driver]Opener)
	mu       sync.RWMutex
)

// Register makes a driver available to Open. Driver packages call it from init.
func Register(driver Driver, fn Opener) {
	mu.Lock()
	defer mu.Unlock()
	registry[driver] = fn
}

// Open connects using the opener registered for cfg.Driver.
func Open(ctx context.Context, cfg *Config) (DB, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "nil database config")
	}

	mu.RLock()
	fn, ok := registry[cfg.Driver]
	mu.RUnlock()

	if !ok {
		return nil, errs.Newf(errs.ErrKindConfig, "unsupported driver %q", string(cfg.Driver))
	}
	return fn(ctx, cfg)
}

// Drivers lists the registered driver names in sorted order.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for d := range registry {
		names = append(names, string(d))
	}
	sort.Strings(names)
	return names
}

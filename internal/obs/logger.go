// Package obs provides the process-wide structured logger; the resource
// monitor logs through it via Named("resource"). It wraps zap the same way sunholo/ailang's sibling systems in the
// retrieval pack wire structured logging: one lazily-initialized, read-write
// locked singleton with explicit Init/Shutdown for deterministic test
// teardown (spec.md §9, "Global mutable state").
package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

// Init installs a zap logger: the development config when development is
// true, the production config otherwise. Safe to call multiple times; the
// last call wins. Tests should call Shutdown in a defer to reset state.
func Init(development bool) error {
	mu.Lock()
	defer mu.Unlock()
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	log = l
	return nil
}

// Shutdown flushes and releases the process-wide logger.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if log != nil {
		_ = log.Sync()
	}
	log = nil
}

// L returns the current logger, falling back to a no-op logger before Init
// or after Shutdown so callers never need a nil check.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// Named returns a child logger scoped to a subsystem, e.g. obs.Named("gc").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

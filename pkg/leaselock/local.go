package leaselock

import (
	"context"
	"errors"
	"sync"
)

// Local is an in-process lease table. Leases never expire; they are held
// until fn returns.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// WithLease runs fn unless key is already held, in which case it returns
// ErrBusy.
func (l *Local) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return errors.New("lease lock key is empty")
	}
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return ErrBusy
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// Held reports whether key is currently leased.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

package vector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
)

// Pool hands out one Store per worker slot. A slot is owned by a single
// goroutine, so the Store it returns is never used concurrently.
type Pool struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	stores map[int]*Store
}

// NewPool returns a pool of lazily opened stores on path. Every store logs
// through logger, whichever task opened it.
func NewPool(path string, logger *slog.Logger) *Pool {
	return &Pool{path: path, logger: logger, stores: make(map[int]*Store)}
}

// Get returns the store of a slot, opening it on first use.
func (p *Pool) Get(ctx context.Context, slot int) (*Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.stores[slot]; ok {
		return s, nil
	}
	s, err := Open(ctxlog.WithLogger(ctx, p.logger), p.path)
	if err != nil {
		return nil, err
	}
	p.stores[slot] = s
	return s, nil
}

// Len returns how many stores have been opened.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stores)
}

// Close closes every opened store.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for slot, s := range p.stores {
		errs = append(errs, s.Close())
		delete(p.stores, slot)
	}
	return errors.Join(errs...)
}

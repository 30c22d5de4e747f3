package service

import (
	"context"
	"sync"
)

// Transactor runs fn atomically. The Postgres implementation carries the
// transaction in the context passed to fn.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// lockTx serializes persist-and-index when no database is configured.
type lockTx struct {
	mu sync.Mutex
}

func (t *lockTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

package app

import (
	"context"
	"database/sql"
	"time"

	"bankguard/internal/platform/postgres"
	dErrors "bankguard/pkg/domain-errors"
)

const defaultFraudTxTimeout = 5 * time.Second

// fraudPostgresTx bounds the save-and-index transaction of fraud processing.
// The memory store joins it through the context.
type fraudPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newFraudTx(db *sql.DB) *fraudPostgresTx {
	return &fraudPostgresTx{db: db}
}

func (t *fraudPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultFraudTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return postgres.RunInTx(ctx, t.db, fn)
}

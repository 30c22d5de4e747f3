package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankguard/internal/fraud/models"
	"bankguard/internal/platform/postgres"
	"bankguard/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const transactionColumns = `id, account_id, customer_id, trim_scale(amount)::text, currency, type, merchant_name,
	merchant_category, description, location, occurred_at, ip_address, device_id,
	flagged_for_review, fraud_score, fraud_reason, degraded`

// Save inserts the transaction. It joins any transaction carried by ctx.
func (s *PostgresStore) Save(ctx context.Context, txn *models.Transaction) error {
	_, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, customer_id, amount, currency, type, merchant_name,
			merchant_category, description, location, occurred_at, ip_address, device_id,
			flagged_for_review, fraud_score, fraud_reason, degraded)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		txn.ID, txn.AccountID, txn.CustomerID, txn.Amount, txn.Currency, string(txn.Type), txn.MerchantName,
		txn.MerchantCategory, txn.Description, txn.Location, txn.Timestamp, txn.IPAddress, txn.DeviceID,
		txn.FlaggedForReview, txn.FraudScore, txn.FraudReason, txn.Degraded,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := postgres.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return txn, err
}

func (s *PostgresStore) ListForCustomer(ctx context.Context, customerID string, from, to time.Time) ([]*models.Transaction, error) {
	return s.list(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE customer_id = $1 AND occurred_at BETWEEN $2 AND $3
		ORDER BY occurred_at DESC, id`, customerID, from, to)
}

func (s *PostgresStore) ListFlagged(ctx context.Context) ([]*models.Transaction, error) {
	return s.list(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE flagged_for_review ORDER BY occurred_at DESC, id`)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := postgres.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		txn   models.Transaction
		typ   string
		score sql.NullFloat64
	)
	err := row.Scan(&txn.ID, &txn.AccountID, &txn.CustomerID, &txn.Amount, &txn.Currency, &typ,
		&txn.MerchantName, &txn.MerchantCategory, &txn.Description, &txn.Location, &txn.Timestamp,
		&txn.IPAddress, &txn.DeviceID, &txn.FlaggedForReview, &score, &txn.FraudReason, &txn.Degraded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	txn.Type = models.Type(typ)
	if score.Valid {
		txn.FraudScore = &score.Float64
	}
	return &txn, nil
}

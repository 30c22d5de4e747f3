package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bankguard/internal/memory/models"
	"bankguard/internal/platform/postgres"
	"bankguard/pkg/platform/sentinel"
)

// PostgresStore keeps records in memory_records. Embeddings are stored as
// double precision arrays and compared in process.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, kind, natural_key, owner, content, payload, embedding, created_at, updated_at, retention_until`

func (s *PostgresStore) Upsert(ctx context.Context, rec *models.Record) (*models.Record, error) {
	row := postgres.Execer(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO memory_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (kind, natural_key) DO UPDATE
		SET owner = EXCLUDED.owner, content = EXCLUDED.content, payload = EXCLUDED.payload,
		    embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at
		RETURNING `+recordColumns,
		rec.ID, string(rec.Kind), rec.NaturalKey, rec.Owner, rec.Content, string(rec.Payload),
		toFloat64Array(rec.Embedding), rec.CreatedAt, rec.UpdatedAt, rec.RetentionUntil,
	)
	stored, err := scanRecord(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, sentinel.ErrDuplicate
		}
		return nil, fmt.Errorf("upsert memory record: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, kind models.Kind, key string) (*models.Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM memory_records
		WHERE kind = $1 AND natural_key = $2`, string(kind), key)
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM memory_records WHERE id = $1`, id)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Record, error) {
	rec, err := scanRecord(postgres.Execer(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

// Candidates reads every matching row in one statement, so the result is a
// consistent snapshot.
func (s *PostgresStore) Candidates(ctx context.Context, kind models.Kind, owner string) ([]*models.Record, error) {
	rows, err := postgres.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+recordColumns+` FROM memory_records
		WHERE kind = $1 AND ($2 = '' OR owner = $2)`, string(kind), owner)
	if err != nil {
		return nil, fmt.Errorf("list memory records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateRetention(ctx context.Context, id uuid.UUID, until time.Time) error {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx,
		`UPDATE memory_records SET retention_until = $2 WHERE id = $1`, id, until)
	if err != nil {
		return fmt.Errorf("update memory retention: %w", err)
	}
	return requireAffected(res)
}

// ExtendRetention adds years to the stored deadline in a single statement.
func (s *PostgresStore) ExtendRetention(ctx context.Context, id uuid.UUID, years int) (*models.Record, error) {
	rec, err := scanRecord(postgres.Execer(ctx, s.db).QueryRowContext(ctx, `
		UPDATE memory_records
		SET retention_until = retention_until + make_interval(years => $2)
		WHERE id = $1
		RETURNING `+recordColumns, id, years))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("extend memory retention: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM memory_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete memory record: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM memory_records WHERE retention_until < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired memory records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec       models.Record
		kind      string
		payload   []byte
		embedding pq.Float64Array
	)
	err := row.Scan(&rec.ID, &kind, &rec.NaturalKey, &rec.Owner, &rec.Content, &payload,
		&embedding, &rec.CreatedAt, &rec.UpdatedAt, &rec.RetentionUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan memory record: %w", err)
	}
	rec.Kind = models.Kind(kind)
	rec.Payload = payload
	rec.Embedding = make([]float32, len(embedding))
	for i, v := range embedding {
		rec.Embedding[i] = float32(v)
	}
	return &rec, nil
}

func toFloat64Array(vec []float32) pq.Float64Array {
	out := make(pq.Float64Array, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

package rule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"bankguard/internal/compliance/models"
	"bankguard/internal/platform/postgres"
	"bankguard/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `id, name, description, category, definition, active, priority, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rule *models.Rule) error {
	_, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO compliance_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID, rule.Name, rule.Description, string(rule.Category), rule.Definition,
		rule.Active, rule.Priority, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert compliance rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	row := postgres.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM compliance_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rule, err
}

func (s *PostgresStore) Update(ctx context.Context, rule *models.Rule) error {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE compliance_rules
		SET name = $2, description = $3, category = $4, definition = $5,
		    active = $6, priority = $7, updated_at = $8
		WHERE id = $1`,
		rule.ID, rule.Name, rule.Description, string(rule.Category), rule.Definition,
		rule.Active, rule.Priority, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update compliance rule: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM compliance_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete compliance rule: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Rule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM compliance_rules
		WHERE active ORDER BY priority DESC, name`)
}

func (s *PostgresStore) ListActiveByCategory(ctx context.Context, category models.Category) ([]*models.Rule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM compliance_rules
		WHERE active AND category = $1 ORDER BY priority DESC, name`, string(category))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := postgres.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list compliance rules: %w", err)
	}
	defer rows.Close()

	var out []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance rules: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*models.Rule, error) {
	var (
		rule     models.Rule
		category string
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &category, &rule.Definition,
		&rule.Active, &rule.Priority, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan compliance rule: %w", err)
	}
	rule.Category = models.Category(category)
	return &rule, nil
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

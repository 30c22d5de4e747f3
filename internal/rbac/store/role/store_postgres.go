package role

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bankguard/internal/platform/postgres"
	"bankguard/internal/rbac/models"
	"bankguard/pkg/platform/sentinel"
)

// PostgresStore persists roles in the roles table. Permissions are a TEXT[]
// column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const roleColumns = `id, name, description, permissions, created_at, updated_at`

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, role *models.Role) error {
	_, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		role.ID, role.Name, role.Description, pq.Array(role.Permissions), role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	row := postgres.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Role, error) {
	row := postgres.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE lower(name) = lower($1)`, name)
	return scanRole(row)
}

func (s *PostgresStore) Update(ctx context.Context, role *models.Role) error {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE roles SET name = $2, description = $3, permissions = $4, updated_at = $5
		WHERE id = $1`,
		role.ID, role.Name, role.Description, pq.Array(role.Permissions), role.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("update role: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := postgres.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Role, error) {
	rows, err := postgres.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRole(row scanner) (*models.Role, error) {
	var role models.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, pq.Array(&role.Permissions), &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return &role, nil
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

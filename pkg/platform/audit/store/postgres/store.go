package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	audit "bankguard/pkg/platform/audit"
)

// Store implements audit.Store on the audit_records table. Writes never join
// a transaction carried by the context: an audit record must survive the
// rollback of the operation it describes.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a record. Duplicate ids are ignored so retried writes are
// idempotent.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	query := `
		INSERT INTO audit_records (
			id, actor, action, resource_type, resource_id,
			request, response, source_address, user_agent,
			success, error_message, trace_id, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	var errorMessage sql.NullString
	if record.ErrorMessage != "" {
		errorMessage = sql.NullString{String: record.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Actor,
		string(record.Action),
		record.ResourceType,
		record.ResourceID,
		record.Request,
		record.Response,
		record.SourceAddress,
		record.UserAgent,
		record.Success,
		errorMessage,
		record.TraceID,
		record.RequestID,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Query returns matching records ordered by timestamp descending.
func (s *Store) Query(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Actor != "" {
		add("actor = $%d", q.Actor)
	}
	if q.ResourceType != "" {
		add("resource_type = $%d", q.ResourceType)
	}
	if q.ResourceID != "" {
		add("resource_id = $%d", q.ResourceID)
	}
	if q.SourceAddress != "" {
		add("source_address = $%d", q.SourceAddress)
	}
	if !q.From.IsZero() {
		add("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("created_at <= $%d", q.To)
	}
	if q.FailuresOnly {
		where = append(where, "NOT success")
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, actor, action, resource_type, resource_id,
			   request, response, source_address, user_agent,
			   success, error_message, trace_id, request_id, created_at
		FROM audit_records`)
	if len(where) > 0 {
		sb.WriteString("\n\t\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\n\t\tORDER BY created_at DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, "\n\t\tLIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteBefore removes records created strictly before cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record
	for rows.Next() {
		var (
			record       audit.Record
			action       string
			errorMessage sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&record.Actor,
			&action,
			&record.ResourceType,
			&record.ResourceID,
			&record.Request,
			&record.Response,
			&record.SourceAddress,
			&record.UserAgent,
			&record.Success,
			&errorMessage,
			&record.TraceID,
			&record.RequestID,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		record.Action = audit.Action(action)
		record.ErrorMessage = errorMessage.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

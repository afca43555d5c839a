package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists payment batches in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed batch store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const batchColumns = `id, name, type, total_amount, total_count, status,
	reconciliation_status, created_by, processed_by, processed_at, external_ref,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, b *Batch) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_batches (
			id, name, type, total_amount, total_count, status,
			reconciliation_status, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Name, string(b.Type), b.TotalAmount, b.TotalCount,
		string(b.Status), string(b.ReconciliationStatus), b.CreatedBy,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Batch, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM payment_batches WHERE id = $1`, id)
	return scanBatch(row)
}

func (p *PostgresStore) Update(ctx context.Context, b *Batch) error {
	now := time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE payment_batches SET
			status = $2, reconciliation_status = $3, processed_by = $4,
			processed_at = $5, external_ref = $6, updated_at = $7
		WHERE id = $1`,
		b.ID, string(b.Status), string(b.ReconciliationStatus),
		nullString(b.ProcessedBy), nullTime(b.ProcessedAt),
		nullString(b.ExternalRef), now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBatchNotFound
	}
	b.UpdatedAt = now
	return nil
}

func (p *PostgresStore) List(ctx context.Context, status Status, limit, offset int) ([]*Batch, int64, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, string(status))
	}

	var total int64
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_batches `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + batchColumns + ` FROM payment_batches ` + where +
		` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(s scanner) (*Batch, error) {
	b := &Batch{}
	var processedBy, externalRef sql.NullString
	var processedAt sql.NullTime

	err := s.Scan(&b.ID, &b.Name, (*string)(&b.Type), &b.TotalAmount,
		&b.TotalCount, (*string)(&b.Status), (*string)(&b.ReconciliationStatus),
		&b.CreatedBy, &processedBy, &processedAt, &externalRef,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}

	b.ProcessedBy = processedBy.String
	b.ExternalRef = externalRef.String
	if processedAt.Valid {
		b.ProcessedAt = &processedAt.Time
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

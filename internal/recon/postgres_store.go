package recon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists reconciliation records in PostgreSQL. The
// free-form metadata bag is stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, batch_id, queue_entry_id, bank_reference, transaction_id,
	amount, transaction_date, status, match_confidence, notes, metadata, imported_by,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	metadata, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO reconciliation_records (
			id, batch_id, queue_entry_id, bank_reference, transaction_id,
			amount, transaction_date, status, match_confidence, notes,
			metadata, imported_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, nullString(r.BatchID), nullString(r.QueueEntryID),
		nullString(r.BankReference), nullString(r.TransactionID),
		r.Amount, r.TransactionDate, string(r.Status), r.MatchConfidence,
		nullString(r.Notes), metadata, nullString(r.ImportedBy),
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM reconciliation_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (p *PostgresStore) Update(ctx context.Context, r *Record) error {
	now := time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE reconciliation_records SET
			batch_id = $2, queue_entry_id = $3, status = $4,
			match_confidence = $5, notes = $6, updated_at = $7
		WHERE id = $1`,
		r.ID, nullString(r.BatchID), nullString(r.QueueEntryID),
		string(r.Status), r.MatchConfidence, nullString(r.Notes), now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	r.UpdatedAt = now
	return nil
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Record, int64, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, string(status))
	}

	var total int64
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + recordColumns + ` FROM reconciliation_records ` + where +
		` ORDER BY created_at ASC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	return records, total, err
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*Record, error) {
	records, _, err := p.ListByStatus(ctx, StatusPending, 0, 0)
	return records, err
}

func (p *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM reconciliation_records
		GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var batchID, entryID, bankRef, txnID, notes, importedBy sql.NullString
	var metadata []byte

	err := s.Scan(&r.ID, &batchID, &entryID, &bankRef, &txnID,
		&r.Amount, &r.TransactionDate, (*string)(&r.Status), &r.MatchConfidence,
		&notes, &metadata, &importedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	r.BatchID = batchID.String
	r.QueueEntryID = entryID.String
	r.BankReference = bankRef.String
	r.TransactionID = txnID.String
	r.Notes = notes.String
	r.ImportedBy = importedBy.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode record metadata: %w", err)
		}
	}
	return r, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

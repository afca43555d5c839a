package duplicates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists duplicate flags in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed flag store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const flagColumns = `id, account_number, routing_code, beneficiary_name, owner_id,
	claim_ids, detection_type, confidence, review_status, reviewed_by, reviewed_at,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, f *Flag) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO duplicate_flags (
			id, account_number, routing_code, beneficiary_name, owner_id,
			claim_ids, detection_type, confidence, review_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.AccountNumber, f.RoutingCode, f.BeneficiaryName, f.OwnerID,
		pq.Array(f.ClaimIDs), string(f.DetectionType), f.Confidence,
		string(f.ReviewStatus), f.CreatedAt, f.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Flag, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+flagColumns+` FROM duplicate_flags WHERE id = $1`, id)
	return scanFlag(row)
}

func (p *PostgresStore) Update(ctx context.Context, f *Flag) error {
	now := time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE duplicate_flags SET
			claim_ids = $2, confidence = $3, review_status = $4,
			reviewed_by = $5, reviewed_at = $6, updated_at = $7
		WHERE id = $1`,
		f.ID, pq.Array(f.ClaimIDs), f.Confidence, string(f.ReviewStatus),
		nullString(f.ReviewedBy), nullTime(f.ReviewedAt), now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFlagNotFound
	}
	f.UpdatedAt = now
	return nil
}

func (p *PostgresStore) FindOpen(ctx context.Context, accountNumber, routingCode string, dt DetectionType) (*Flag, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+flagColumns+`
		FROM duplicate_flags
		WHERE account_number = $1 AND routing_code = $2 AND detection_type = $3
		  AND review_status NOT IN ('approved', 'rejected')
		ORDER BY created_at DESC
		LIMIT 1`,
		accountNumber, routingCode, string(dt))
	return scanFlag(row)
}

func (p *PostgresStore) List(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Flag, int64, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE review_status = $1"
		args = append(args, string(status))
	}

	var total int64
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duplicate_flags `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + flagColumns + ` FROM duplicate_flags ` + where +
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

	var flags []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, 0, err
		}
		flags = append(flags, f)
	}
	return flags, total, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFlag(s scanner) (*Flag, error) {
	f := &Flag{}
	var claimIDs pq.StringArray
	var reviewedBy sql.NullString
	var reviewedAt sql.NullTime

	err := s.Scan(&f.ID, &f.AccountNumber, &f.RoutingCode, &f.BeneficiaryName,
		&f.OwnerID, &claimIDs, (*string)(&f.DetectionType), &f.Confidence,
		(*string)(&f.ReviewStatus), &reviewedBy, &reviewedAt,
		&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, err
	}

	f.ClaimIDs = []string(claimIDs)
	f.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		f.ReviewedAt = &reviewedAt.Time
	}
	return f, nil
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

package bankcheck

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresCacheStore persists verification results in PostgreSQL.
type PostgresCacheStore struct {
	db *sql.DB
}

// NewPostgresCacheStore creates a new PostgreSQL-backed cache store.
func NewPostgresCacheStore(db *sql.DB) *PostgresCacheStore {
	return &PostgresCacheStore{db: db}
}

func (p *PostgresCacheStore) Get(ctx context.Context, accountNumber, routingCode string) (*CacheEntry, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT account_number, routing_code, valid, bank_name, branch_name,
		       expires_at, created_at, updated_at
		FROM bank_validation_cache
		WHERE account_number = $1 AND routing_code = $2`,
		accountNumber, routingCode)

	e := &CacheEntry{}
	var bankName, branchName sql.NullString
	err := row.Scan(&e.AccountNumber, &e.RoutingCode, &e.Valid, &bankName, &branchName,
		&e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	e.BankName = bankName.String
	e.BranchName = branchName.String
	return e, nil
}

func (p *PostgresCacheStore) Upsert(ctx context.Context, e *CacheEntry) error {
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bank_validation_cache (
			account_number, routing_code, valid, bank_name, branch_name,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_number, routing_code) DO UPDATE SET
			valid       = EXCLUDED.valid,
			bank_name   = EXCLUDED.bank_name,
			branch_name = EXCLUDED.branch_name,
			expires_at  = EXCLUDED.expires_at,
			updated_at  = EXCLUDED.updated_at`,
		e.AccountNumber, e.RoutingCode, e.Valid,
		nullString(e.BankName), nullString(e.BranchName),
		e.ExpiresAt, now, now,
	)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time assertion that PostgresCacheStore implements CacheStore.
var _ CacheStore = (*PostgresCacheStore)(nil)

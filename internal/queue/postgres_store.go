package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists queue entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed queue store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, claim_id, owner_id, scheme, amount, beneficiary_name,
		account_number, routing_code, bank_name, branch_name,
		status, validation_status, validation_detail, batch_id, priority,
		scheduled_at, retry_count, max_retries, failure_reason, processed_at,
		version, created_at, updated_at`

// listingOrder is the fairness contract for every listing path.
const listingOrder = `ORDER BY CASE priority WHEN 'high' THEN 3 WHEN 'normal' THEN 2 ELSE 1 END DESC, created_at ASC`

func (p *PostgresStore) Create(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO queue_entries (
			id, claim_id, owner_id, scheme, amount, beneficiary_name,
			account_number, routing_code, bank_name, branch_name,
			status, validation_status, validation_detail, batch_id, priority,
			scheduled_at, retry_count, max_retries, failure_reason, processed_at,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::NUMERIC(14,2), $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23
		)`,
		e.ID, e.ClaimID, e.OwnerID, nullString(e.Scheme), e.Amount, e.BeneficiaryName,
		e.AccountNumber, e.RoutingCode, nullString(e.BankName), nullString(e.BranchName),
		string(e.Status), string(e.ValidationStatus), nullString(e.ValidationDetail),
		nullString(e.BatchID), string(e.Priority),
		nullTime(e.ScheduledAt), e.RetryCount, e.MaxRetries, nullString(e.FailureReason),
		nullTime(e.ProcessedAt), e.Version, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (p *PostgresStore) FindByClaim(ctx context.Context, claimID string) (*Entry, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE claim_id = $1`, claimID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (p *PostgresStore) Update(ctx context.Context, e *Entry) error {
	now := time.Now()
	result, err := p.db.ExecContext(ctx, `
		UPDATE queue_entries SET
			bank_name = $1, branch_name = $2,
			status = $3, validation_status = $4, validation_detail = $5,
			batch_id = $6, scheduled_at = $7, retry_count = $8,
			failure_reason = $9, processed_at = $10,
			version = version + 1, updated_at = $11
		WHERE id = $12 AND version = $13`,
		nullString(e.BankName), nullString(e.BranchName),
		string(e.Status), string(e.ValidationStatus), nullString(e.ValidationDetail),
		nullString(e.BatchID), nullTime(e.ScheduledAt), e.RetryCount,
		nullString(e.FailureReason), nullTime(e.ProcessedAt),
		now, e.ID, e.Version,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM queue_entries WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return ErrEntryNotFound
	}

	e.Version++
	e.UpdatedAt = now
	return nil
}

func (p *PostgresStore) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int64, error) {
	where, args := buildFilter(f)

	var total int64
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM queue_entries %s %s`, entryColumns, where, listingOrder)
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	entries, err := scanEntries(rows)
	return entries, total, err
}

func (p *PostgresStore) ListByIDs(ctx context.Context, ids []string) ([]*Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM queue_entries WHERE id IN (%s) %s`,
		entryColumns, strings.Join(placeholders, ", "), listingOrder), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (p *PostgresStore) ListByAccount(ctx context.Context, accountNumber string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE account_number = $1
		`+listingOrder, accountNumber)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (p *PostgresStore) ListDueForRetry(ctx context.Context, before time.Time, maxRetries int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE status = 'failed'
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= $1
		  AND retry_count < $2
		`+listingOrder, before, maxRetries)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (p *PostgresStore) Summarize(ctx context.Context) (*Summary, error) {
	s := &Summary{ByValidation: make(map[ValidationStatus]int64)}

	rows, err := p.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM queue_entries
		GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byStatus := make(map[Status]StatusSummary)
	for rows.Next() {
		var agg StatusSummary
		var status string
		if err := rows.Scan(&status, &agg.Count, &agg.Sum); err != nil {
			return nil, err
		}
		agg.Status = Status(status)
		byStatus[agg.Status] = agg
		s.TotalCount += agg.Count
		s.TotalAmount += agg.Sum
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, st := range []Status{StatusPending, StatusValidated, StatusProcessed, StatusFailed, StatusCancelled} {
		if agg, ok := byStatus[st]; ok {
			s.ByStatus = append(s.ByStatus, agg)
		}
	}

	vrows, err := p.db.QueryContext(ctx, `
		SELECT validation_status, COUNT(*)
		FROM queue_entries
		GROUP BY validation_status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = vrows.Close() }()

	for vrows.Next() {
		var vs string
		var count int64
		if err := vrows.Scan(&vs, &count); err != nil {
			return nil, err
		}
		s.ByValidation[ValidationStatus(vs)] = count
	}
	return s, vrows.Err()
}

func buildFilter(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ValidationStatus != "" {
		add("validation_status = $%d", string(f.ValidationStatus))
	}
	if f.BatchID != "" {
		add("batch_id = $%d", f.BatchID)
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.Scheme != "" {
		add("scheme = $%d", f.Scheme)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at <= $%d", *f.CreatedTo)
	}
	if f.MinAmount != nil {
		add("amount >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("amount <= $%d", *f.MaxAmount)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	e := &Entry{}
	var (
		scheme           sql.NullString
		bankName         sql.NullString
		branchName       sql.NullString
		validationDetail sql.NullString
		batchID          sql.NullString
		failureReason    sql.NullString
		scheduledAt      sql.NullTime
		processedAt      sql.NullTime
		status           string
		validationStatus string
		priority         string
	)

	err := s.Scan(
		&e.ID, &e.ClaimID, &e.OwnerID, &scheme, &e.Amount, &e.BeneficiaryName,
		&e.AccountNumber, &e.RoutingCode, &bankName, &branchName,
		&status, &validationStatus, &validationDetail, &batchID, &priority,
		&scheduledAt, &e.RetryCount, &e.MaxRetries, &failureReason, &processedAt,
		&e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = Status(status)
	e.ValidationStatus = ValidationStatus(validationStatus)
	e.Priority = Priority(priority)
	e.Scheme = scheme.String
	e.BankName = bankName.String
	e.BranchName = branchName.String
	e.ValidationDetail = validationDetail.String
	e.BatchID = batchID.String
	e.FailureReason = failureReason.String
	if scheduledAt.Valid {
		e.ScheduledAt = &scheduledAt.Time
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}

	return e, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var result []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

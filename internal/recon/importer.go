package recon

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/idgen"
	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/metrics"
)

// Header aliases recognized in settlement files, case-insensitive.
var headerAliases = map[string]string{
	"bank_reference":   "bank_reference",
	"reference":        "bank_reference",
	"transaction_id":   "transaction_id",
	"txn_id":           "transaction_id",
	"amount":           "amount",
	"transaction_date": "transaction_date",
	"date":             "transaction_date",
}

// Date layouts accepted for the transaction date column.
var dateLayouts = []string{"2006-01-02", "02-01-2006"}

// ImportFile parses a delimited settlement file and persists each valid row
// as a pending reconciliation record. Invalid rows are reported per row and
// skipped; rows that fail at the persistence step count as failed imports.
// A completed import publishes recon.imported so matching runs.
func (s *Service) ImportFile(ctx context.Context, content, format, importedBy string) (*ImportResult, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if strings.EqualFold(format, "tsv") {
		reader.Comma = '\t'
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, faults.Invalid("content", fmt.Sprintf("malformed %s: %v", format, err))
	}
	if len(rows) == 0 {
		return nil, faults.Invalid("content", "file has no header row")
	}

	header := rows[0]
	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[name]; ok {
			columns[i] = canonical
		} else {
			// Unrecognized columns ride along as per-row metadata.
			columns[i] = "meta:" + strings.TrimSpace(h)
		}
	}

	result := &ImportResult{}
	now := time.Now()

	for i, row := range rows[1:] {
		result.TotalRecords++
		rowNum := i + 2 // 1-based, after header

		record, rowErr := parseRow(columns, row, rowNum)
		if rowErr != nil {
			result.Errors = append(result.Errors, rowErr.Error())
			metrics.ReconciliationImportsTotal.WithLabelValues("invalid").Inc()
			continue
		}

		record.ID = idgen.WithPrefix("rr_")
		record.Status = StatusPending
		record.ImportedBy = importedBy
		record.CreatedAt = now
		record.UpdatedAt = now

		if err := s.store.Create(ctx, record); err != nil {
			result.FailedImports++
			result.Errors = append(result.Errors,
				fmt.Sprintf("row %d: persist failed: %v", rowNum, err))
			metrics.ReconciliationImportsTotal.WithLabelValues("persist_error").Inc()
			continue
		}
		result.SuccessfulImports++
		metrics.ReconciliationImportsTotal.WithLabelValues("imported").Inc()
	}

	logging.L(ctx).Info("settlement file imported",
		"total", result.TotalRecords,
		"imported", result.SuccessfulImports,
		"failed", result.FailedImports,
		"invalid", len(result.Errors)-result.FailedImports)

	if result.SuccessfulImports > 0 {
		s.bus.Publish(events.TopicReconImported, importedBy)
	}
	return result, nil
}

func parseRow(columns, row []string, rowNum int) (*Record, error) {
	record := &Record{}
	var haveAmount, haveDate bool

	for i, value := range row {
		if i >= len(columns) {
			break
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch col := columns[i]; col {
		case "bank_reference":
			record.BankReference = value
		case "transaction_id":
			record.TransactionID = value
		case "amount":
			amount, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
				return nil, fmt.Errorf("row %d: invalid amount %q", rowNum, value)
			}
			if amount <= 0 {
				return nil, fmt.Errorf("row %d: amount must be greater than zero", rowNum)
			}
			record.Amount = amount
			haveAmount = true
		case "transaction_date":
			date, err := parseDate(value)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid transaction date %q", rowNum, value)
			}
			record.TransactionDate = date
			haveDate = true
		default:
			if record.Metadata == nil {
				record.Metadata = make(map[string]string)
			}
			record.Metadata[strings.TrimPrefix(col, "meta:")] = value
		}
	}

	if !haveAmount {
		return nil, fmt.Errorf("row %d: missing amount", rowNum)
	}
	if !haveDate {
		return nil, fmt.Errorf("row %d: missing transaction date", rowNum)
	}
	return record, nil
}

func parseDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

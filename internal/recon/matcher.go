package recon

import (
	"context"
	"math"
	"time"

	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/queue"
)

// MatchAll matches every pending record against processed queue entries.
//
// Outcomes per record:
//   - exact: a single amount candidate processed within 1 calendar day of
//     the transaction date (amount ties resolved to the unique nearest
//     candidate inside the window) → matched, confidence 1.0, entry and
//     batch linked.
//   - partial: exactly one amount candidate regardless of date → partial,
//     confidence 0.7, no link.
//   - otherwise unmatched, confidence 0.
//
// Only pending records are considered, so re-running over unchanged data
// changes nothing.
func (s *Service) MatchAll(ctx context.Context) (*MatchSummary, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MatchSummary{}
	if len(pending) == 0 {
		return summary, nil
	}

	processed, _, err := s.entries.Query(ctx, queue.Filter{Status: queue.StatusProcessed}, 0, 0)
	if err != nil {
		return nil, err
	}

	for _, record := range pending {
		summary.Considered++

		outcome := matchRecord(record, processed)
		record.Status = outcome.status
		record.MatchConfidence = outcome.confidence
		if outcome.entry != nil {
			record.QueueEntryID = outcome.entry.ID
			record.BatchID = outcome.entry.BatchID
		}

		if err := s.store.Update(ctx, record); err != nil {
			logging.L(ctx).Error("failed to persist match outcome",
				"record", record.ID, "error", err)
			continue
		}
		metrics.ReconciliationMatchesTotal.WithLabelValues(string(outcome.status)).Inc()

		switch outcome.status {
		case StatusMatched:
			summary.Matched++
		case StatusPartial:
			summary.Partial++
		default:
			summary.Unmatched++
		}
	}

	logging.L(ctx).Info("matching run finished",
		"considered", summary.Considered,
		"matched", summary.Matched,
		"partial", summary.Partial,
		"unmatched", summary.Unmatched)
	return summary, nil
}

type matchOutcome struct {
	status     Status
	confidence float64
	entry      *queue.Entry
}

func matchRecord(record *Record, processed []*queue.Entry) matchOutcome {
	var amountMatches []*queue.Entry
	for _, e := range processed {
		if math.Abs(e.Amount-record.Amount) <= AmountTolerance {
			amountMatches = append(amountMatches, e)
		}
	}

	switch len(amountMatches) {
	case 0:
		return matchOutcome{status: StatusUnmatched}
	case 1:
		e := amountMatches[0]
		if withinDateWindow(e, record.TransactionDate) {
			return matchOutcome{status: StatusMatched, confidence: ConfidenceExact, entry: e}
		}
		return matchOutcome{status: StatusPartial, confidence: ConfidencePartial}
	}

	// Several amount candidates: take the unique one nearest the
	// transaction date inside the window, otherwise give up.
	if e := uniqueNearest(amountMatches, record.TransactionDate); e != nil {
		return matchOutcome{status: StatusMatched, confidence: ConfidenceExact, entry: e}
	}
	return matchOutcome{status: StatusUnmatched}
}

func withinDateWindow(e *queue.Entry, txDate time.Time) bool {
	if e.ProcessedAt == nil {
		return false
	}
	return dayDistance(*e.ProcessedAt, txDate) <= DateWindowDays
}

func uniqueNearest(candidates []*queue.Entry, txDate time.Time) *queue.Entry {
	best := -1
	var winner *queue.Entry
	tied := false

	for _, e := range candidates {
		if e.ProcessedAt == nil {
			continue
		}
		d := dayDistance(*e.ProcessedAt, txDate)
		if d > DateWindowDays {
			continue
		}
		switch {
		case winner == nil || d < best:
			best, winner, tied = d, e, false
		case d == best:
			tied = true
		}
	}

	if tied {
		return nil
	}
	return winner
}

// dayDistance is the absolute distance in calendar days between two
// timestamps, ignoring time of day.
func dayDistance(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

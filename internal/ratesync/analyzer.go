// Package ratesync implements the exchange-rate synchronization engine:
// gap analysis against the local store, ticker discovery, bulk fetching
// from the market-data provider, and batched reconciliation back into
// the store.
package ratesync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/domain"
)

// BaselineMode selects where gap analysis starts scanning.
type BaselineMode string

const (
	// BaselineFirstTransaction scans every currency from a single global
	// start date, the date of the oldest transaction in the ledger.
	BaselineFirstTransaction BaselineMode = "first-transaction"

	// BaselineLastKnownRate scans each currency from its own most recent
	// stored rate. Currencies with no stored rates at all are skipped.
	BaselineLastKnownRate BaselineMode = "last-known-rate"
)

// refreshableCount is how many trailing records are re-checked against
// the provider to catch late revisions.
const refreshableCount = 2

// Plan is the per-currency work list produced by gap analysis.
type Plan struct {
	Currency domain.Currency

	// MissingDates are the dates in [baseline, today] with no stored
	// rate, ascending.
	MissingDates []time.Time

	// Refreshables are the most recent stored records, eligible for a
	// provider re-check. Populated only in last-known-rate mode; a
	// full-history pass never rewrites settled history.
	Refreshables []domain.ExchangeRate
}

// Empty reports whether the plan carries no work at all.
func (p Plan) Empty() bool {
	return len(p.MissingDates) == 0 && len(p.Refreshables) == 0
}

// Operations is the number of store operations the plan may produce.
func (p Plan) Operations() int {
	return len(p.MissingDates) + len(p.Refreshables)
}

// GapAnalyzer diffs the rate store against the calendar.
type GapAnalyzer struct {
	rates   RateStore
	cfg     config.SyncConfig
	emitter Emitter
	log     zerolog.Logger
	now     func() time.Time
}

// NewGapAnalyzer creates a gap analyzer.
func NewGapAnalyzer(rates RateStore, cfg config.SyncConfig, emitter Emitter, log zerolog.Logger) *GapAnalyzer {
	return &GapAnalyzer{
		rates:   rates,
		cfg:     cfg,
		emitter: emitter,
		log:     log.With().Str("component", "gap_analyzer").Logger(),
		now:     time.Now,
	}
}

// Analyze builds a plan for every currency by scanning day-by-day from
// the baseline to today inclusive. globalBaseline is required in
// first-transaction mode and ignored otherwise.
//
// On cancellation the plans finalized so far are returned together with
// ctx.Err(); the caller distinguishes cancelled from failed.
func (a *GapAnalyzer) Analyze(ctx context.Context, currencies []domain.Currency, mode BaselineMode, globalBaseline *time.Time) ([]Plan, error) {
	if mode == BaselineFirstTransaction && globalBaseline == nil {
		return nil, fmt.Errorf("first-transaction mode requires a baseline date")
	}

	today := domain.Day(a.now())
	var plans []Plan

	for _, cur := range currencies {
		if err := ctx.Err(); err != nil {
			return plans, err
		}

		start, skip, err := a.baselineFor(cur, mode, globalBaseline)
		if err != nil {
			return nil, fmt.Errorf("failed to determine baseline for %s: %w", cur.Code, err)
		}
		if skip {
			a.emitter.OnProgress(fmt.Sprintf("%s has no stored rates yet, skipping (run a full sync first)", cur.Code))
			continue
		}

		plan, err := a.scanCurrency(ctx, cur, start, today, mode)
		if err != nil {
			if ctx.Err() != nil {
				return plans, ctx.Err()
			}
			return nil, err
		}

		if plan.Empty() {
			a.emitter.OnProgress(fmt.Sprintf("%s is up to date", cur.Code))
			continue
		}

		a.log.Debug().
			Str("currency", cur.Code).
			Int("missing", len(plan.MissingDates)).
			Int("refreshable", len(plan.Refreshables)).
			Msg("Gap analysis complete for currency")

		plans = append(plans, plan)
	}

	return plans, nil
}

// baselineFor returns the scan start date for a currency, or skip=true
// when the currency has no usable baseline in the requested mode.
func (a *GapAnalyzer) baselineFor(cur domain.Currency, mode BaselineMode, globalBaseline *time.Time) (time.Time, bool, error) {
	if mode == BaselineFirstTransaction {
		return domain.Day(*globalBaseline), false, nil
	}

	latest, err := a.rates.LatestDate(cur.ID)
	if err != nil {
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, true, nil
	}

	return domain.Day(*latest), false, nil
}

func (a *GapAnalyzer) scanCurrency(ctx context.Context, cur domain.Currency, start, today time.Time, mode BaselineMode) (Plan, error) {
	plan := Plan{Currency: cur}

	scanned := 0
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		exists, err := a.rates.Exists(cur.ID, d)
		if err != nil {
			return plan, fmt.Errorf("failed to check %s on %s: %w", cur.Code, domain.FormatDay(d), err)
		}
		if !exists {
			plan.MissingDates = append(plan.MissingDates, d)
		}

		scanned++
		if scanned%a.cfg.ProgressEvery == 0 {
			a.emitter.OnProgress(fmt.Sprintf("Scanning %s: %d dates checked, %d gaps so far", cur.Code, scanned, len(plan.MissingDates)))
		}
	}

	if mode == BaselineLastKnownRate {
		recent, err := a.rates.LastRecords(cur.ID, refreshableCount)
		if err != nil {
			return plan, fmt.Errorf("failed to load refreshable records for %s: %w", cur.Code, err)
		}
		plan.Refreshables = recent
	}

	return plan, nil
}

package ratesync

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/domain"
)

// ReconcileResult counts the writes a reconciliation pass actually made.
type ReconcileResult struct {
	Inserted int
	Updated  int
}

// Reconciler applies fetched rates to the store: batched inserts for
// missing dates and guarded updates for recent refreshable records.
type Reconciler struct {
	rates   RateStore
	cfg     config.SyncConfig
	emitter Emitter
	log     zerolog.Logger
	now     func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(rates RateStore, cfg config.SyncConfig, emitter Emitter, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		rates:   rates,
		cfg:     cfg,
		emitter: emitter,
		log:     log.With().Str("component", "reconciler").Logger(),
		now:     time.Now,
	}
}

// CleanStore removes invalid stored rows. Run once before a full
// synchronization, not per currency; the dates freed up become gaps in
// the very next analysis.
func (r *Reconciler) CleanStore() (int64, error) {
	removed, err := r.rates.CleanInvalid()
	if err != nil {
		return 0, fmt.Errorf("failed to clean invalid rates: %w", err)
	}

	if removed > 0 {
		r.emitter.OnProgress(fmt.Sprintf("Cleaned %d invalid exchange rate records", removed))
	}

	return removed, nil
}

// EligibleRefreshables filters stored records down to those recent
// enough to be rewritten by a provider revision.
func (r *Reconciler) EligibleRefreshables(records []domain.ExchangeRate) []domain.ExchangeRate {
	cutoff := domain.Day(r.now().Add(-r.cfg.RefreshWindow))

	var eligible []domain.ExchangeRate
	for _, rec := range records {
		if !rec.Date.Before(cutoff) {
			eligible = append(eligible, rec)
		}
	}

	return eligible
}

// Reconcile writes fetched rates for one currency. Missing dates are
// inserted in date order in fixed-size batches; refreshable records are
// updated only when the fresh value differs from the stored one by more
// than the configured relative threshold. Re-running with the same
// inputs performs zero additional writes.
func (r *Reconciler) Reconcile(ctx context.Context, cur domain.Currency, missing map[time.Time]float64, refreshables []domain.ExchangeRate, refreshed map[time.Time]float64) (ReconcileResult, error) {
	var result ReconcileResult

	inserted, err := r.insertMissing(ctx, cur, missing)
	if err != nil {
		return result, err
	}
	result.Inserted = inserted

	updated, err := r.applyRefresh(ctx, cur, refreshables, refreshed)
	if err != nil {
		return result, err
	}
	result.Updated = updated

	return result, nil
}

func (r *Reconciler) insertMissing(ctx context.Context, cur domain.Currency, missing map[time.Time]float64) (int, error) {
	if len(missing) == 0 {
		return 0, nil
	}

	dates := make([]time.Time, 0, len(missing))
	for d := range missing {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	records := make([]domain.ExchangeRate, 0, len(dates))
	for _, d := range dates {
		records = append(records, domain.ExchangeRate{
			CurrencyID: cur.ID,
			Date:       d,
			Rate:       missing[d],
		})
	}

	inserted := 0
	for start := 0; start < len(records); start += r.cfg.InsertBatchSize {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		end := start + r.cfg.InsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		accepted, err := r.rates.InsertBatch(batch)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert rate batch for %s: %w", cur.Code, err)
		}
		inserted += len(accepted)

		// Only rows the store actually took; rejected rows produced no write.
		for _, rec := range accepted {
			r.emitter.OnRateWritten(cur.Code, rec.Rate, rec.Date)
		}
	}

	if inserted > 0 {
		r.emitter.OnProgress(fmt.Sprintf("Inserted %d rates for %s", inserted, cur.Code))
	}

	return inserted, nil
}

func (r *Reconciler) applyRefresh(ctx context.Context, cur domain.Currency, refreshables []domain.ExchangeRate, refreshed map[time.Time]float64) (int, error) {
	updated := 0

	for _, rec := range r.EligibleRefreshables(refreshables) {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		fresh, ok := refreshed[rec.Date]
		if !ok {
			continue
		}

		if !materiallyDifferent(rec.Rate, fresh, r.cfg.RefreshThreshold) {
			continue
		}

		changed, err := r.rates.Update(cur.ID, rec.Date, fresh)
		if err != nil {
			r.log.Warn().Err(err).
				Str("currency", cur.Code).
				Str("date", domain.FormatDay(rec.Date)).
				Msg("Failed to refresh stored rate")
			continue
		}
		if !changed {
			continue
		}

		updated++
		r.emitter.OnRateWritten(cur.Code, fresh, rec.Date)
	}

	return updated, nil
}

// materiallyDifferent reports whether fresh differs from stored by more
// than the relative threshold. A stored zero is always material; it
// should not survive anyway.
func materiallyDifferent(stored, fresh, threshold float64) bool {
	if stored == 0 {
		return true
	}

	return math.Abs(fresh-stored)/math.Abs(stored) > threshold
}

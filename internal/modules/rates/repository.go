// Package rates provides access to the exchange-rate history table.
package rates

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/database"
	"github.com/avolkov/fxsync/internal/domain"
)

// Repository stores day-granularity exchange rates keyed by (currency, date).
// Rates are expressed as "1 unit of currency = rate USD".
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new rates repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "rates_repo").Logger(),
	}
}

// Exists reports whether a rate is stored for the currency on the given day.
func (r *Repository) Exists(currencyID int64, date time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM exchange_rates WHERE currency_id = ? AND date = ?",
		currencyID, domain.FormatDay(date),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check rate existence: %w", err)
	}

	return count > 0, nil
}

// GetRange returns stored rates for a currency in [from, to], ordered by
// date ascending.
func (r *Repository) GetRange(currencyID int64, from, to time.Time) ([]domain.ExchangeRate, error) {
	rows, err := r.db.Query(`
		SELECT currency_id, date, rate
		FROM exchange_rates
		WHERE currency_id = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC
	`, currencyID, domain.FormatDay(from), domain.FormatDay(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query rate range: %w", err)
	}
	defer rows.Close()

	return scanRates(rows)
}

// LastRecords returns the n most recent stored rates for a currency,
// ordered by date descending.
func (r *Repository) LastRecords(currencyID int64, n int) ([]domain.ExchangeRate, error) {
	rows, err := r.db.Query(`
		SELECT currency_id, date, rate
		FROM exchange_rates
		WHERE currency_id = ?
		ORDER BY date DESC
		LIMIT ?
	`, currencyID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query last records: %w", err)
	}
	defer rows.Close()

	return scanRates(rows)
}

// LatestDate returns the most recent date with a stored rate for the
// currency, or nil when the currency has no records at all.
func (r *Repository) LatestDate(currencyID int64) (*time.Time, error) {
	var dateStr sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(date) FROM exchange_rates WHERE currency_id = ?", currencyID,
	).Scan(&dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest rate date: %w", err)
	}

	if !dateStr.Valid || dateStr.String == "" {
		return nil, nil
	}

	date, err := domain.ParseDay(dateStr.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored date %q: %w", dateStr.String, err)
	}

	return &date, nil
}

// LatestBefore returns the most recent stored rate strictly before the
// given date, or nil when none exists. Used as the market-closed fallback.
func (r *Repository) LatestBefore(currencyID int64, date time.Time) (*float64, error) {
	var rate float64
	err := r.db.QueryRow(`
		SELECT rate
		FROM exchange_rates
		WHERE currency_id = ? AND date < ?
		ORDER BY date DESC
		LIMIT 1
	`, currencyID, domain.FormatDay(date)).Scan(&rate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fallback rate: %w", err)
	}

	return &rate, nil
}

// Insert stores one rate row. Returns false without error when the row
// already exists.
func (r *Repository) Insert(currencyID int64, rate float64, date time.Time) (bool, error) {
	if !validRate(rate) {
		return false, fmt.Errorf("refusing to insert invalid rate %f for currency %d", rate, currencyID)
	}

	result, err := r.db.Exec(
		"INSERT OR IGNORE INTO exchange_rates (currency_id, date, rate) VALUES (?, ?, ?)",
		currencyID, domain.FormatDay(date), rate,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert rate: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// InsertBatch stores many rate rows for one currency and returns the rows
// actually accepted. Rows that collide with existing records or carry an
// invalid value are skipped without aborting the batch.
func (r *Repository) InsertBatch(records []domain.ExchangeRate) ([]domain.ExchangeRate, error) {
	if len(records) == 0 {
		return nil, nil
	}

	accepted := make([]domain.ExchangeRate, 0, len(records))
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			"INSERT OR IGNORE INTO exchange_rates (currency_id, date, rate) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare batch insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			if !validRate(rec.Rate) {
				continue
			}

			result, err := stmt.Exec(rec.CurrencyID, domain.FormatDay(rec.Date), rec.Rate)
			if err != nil {
				// One bad row must not sink the rest of the batch.
				r.log.Warn().Err(err).
					Int64("currency_id", rec.CurrencyID).
					Str("date", domain.FormatDay(rec.Date)).
					Msg("Skipping rate row rejected by store")
				continue
			}

			if n, _ := result.RowsAffected(); n > 0 {
				accepted = append(accepted, rec)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return accepted, nil
}

// Update rewrites an existing rate row. Returns false without error when
// no row exists for the key.
func (r *Repository) Update(currencyID int64, date time.Time, rate float64) (bool, error) {
	if !validRate(rate) {
		return false, fmt.Errorf("refusing to update to invalid rate %f for currency %d", rate, currencyID)
	}

	result, err := r.db.Exec(
		"UPDATE exchange_rates SET rate = ? WHERE currency_id = ? AND date = ?",
		rate, currencyID, domain.FormatDay(date),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update rate: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// CleanInvalid deletes rows whose rate is non-positive or non-finite and
// returns the number removed. Invalid rows are a data-quality defect; the
// dates they occupied become gaps again.
func (r *Repository) CleanInvalid() (int64, error) {
	// NaN compares unequal to itself, which SQLite honours.
	result, err := r.db.Exec(`
		DELETE FROM exchange_rates
		WHERE rate IS NULL OR rate <= 0 OR rate != rate OR rate = 1e999 OR rate = -1e999
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean invalid rates: %w", err)
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		r.log.Info().Int64("rows_deleted", removed).Msg("Removed invalid exchange rates")
	}

	return removed, nil
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsNaN(rate) && !math.IsInf(rate, 0)
}

func scanRates(rows *sql.Rows) ([]domain.ExchangeRate, error) {
	var records []domain.ExchangeRate
	for rows.Next() {
		var rec domain.ExchangeRate
		var dateStr string

		if err := rows.Scan(&rec.CurrencyID, &dateStr, &rec.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}

		date, err := domain.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored date %q: %w", dateStr, err)
		}
		rec.Date = date

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rates: %w", err)
	}

	return records, nil
}

// Package currency provides access to the tracked-currency table.
package currency

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/domain"
)

// Repository provides CRUD access to currencies and their cached tickers.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new currency repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "currency_repo").Logger(),
	}
}

const currencyColumns = "id, code, name, symbol, ticker, ticker_inverse"

func scanCurrency(row interface{ Scan(...any) error }) (*domain.Currency, error) {
	var c domain.Currency
	var ticker sql.NullString
	var inverse int

	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &ticker, &inverse); err != nil {
		return nil, err
	}

	if ticker.Valid && ticker.String != "" {
		c.Ticker = &ticker.String
	}
	c.TickerInverse = inverse != 0

	return &c, nil
}

// All returns every currency ordered by code.
func (r *Repository) All() ([]domain.Currency, error) {
	rows, err := r.db.Query("SELECT " + currencyColumns + " FROM currencies ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var currencies []domain.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currencies: %w", err)
	}

	return currencies, nil
}

// AllExcept returns every currency except the one with the given code.
// The store's base currency is never synchronized against itself.
func (r *Repository) AllExcept(code string) ([]domain.Currency, error) {
	rows, err := r.db.Query(
		"SELECT "+currencyColumns+" FROM currencies WHERE UPPER(code) != UPPER(?) ORDER BY code",
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var currencies []domain.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currencies: %w", err)
	}

	return currencies, nil
}

// GetByID returns a currency by id, or nil if not found.
func (r *Repository) GetByID(id int64) (*domain.Currency, error) {
	row := r.db.QueryRow("SELECT "+currencyColumns+" FROM currencies WHERE id = ?", id)

	c, err := scanCurrency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get currency %d: %w", id, err)
	}

	return c, nil
}

// GetByCode returns a currency by its code, or nil if not found.
func (r *Repository) GetByCode(code string) (*domain.Currency, error) {
	row := r.db.QueryRow(
		"SELECT "+currencyColumns+" FROM currencies WHERE UPPER(code) = UPPER(?)", code)

	c, err := scanCurrency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get currency %s: %w", code, err)
	}

	return c, nil
}

// Create inserts a new currency and returns its id.
func (r *Repository) Create(code, name, symbol string) (int64, error) {
	result, err := r.db.Exec(
		"INSERT INTO currencies (code, name, symbol) VALUES (?, ?, ?)",
		code, name, symbol,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create currency %s: %w", code, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get currency id: %w", err)
	}

	r.log.Info().Str("code", code).Int64("id", id).Msg("Created currency")
	return id, nil
}

// Update changes a currency's display name and symbol. The code is
// immutable once rates reference it.
func (r *Repository) Update(id int64, name, symbol string) error {
	_, err := r.db.Exec(
		"UPDATE currencies SET name = ?, symbol = ? WHERE id = ?",
		name, symbol, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update currency %d: %w", id, err)
	}

	return nil
}

// GetTicker returns the cached ticker resolution for a currency, or nil
// when none has been discovered yet.
func (r *Repository) GetTicker(currencyID int64) (*domain.TickerResolution, error) {
	var ticker sql.NullString
	var inverse int

	err := r.db.QueryRow(
		"SELECT ticker, ticker_inverse FROM currencies WHERE id = ?", currencyID,
	).Scan(&ticker, &inverse)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker for currency %d: %w", currencyID, err)
	}

	if !ticker.Valid || ticker.String == "" {
		return nil, nil
	}

	return &domain.TickerResolution{Symbol: ticker.String, Inverse: inverse != 0}, nil
}

// SetTicker persists a discovered ticker resolution onto the currency so
// later runs skip discovery.
func (r *Repository) SetTicker(currencyID int64, symbol string, inverse bool) error {
	inv := 0
	if inverse {
		inv = 1
	}

	_, err := r.db.Exec(
		"UPDATE currencies SET ticker = ?, ticker_inverse = ? WHERE id = ?",
		symbol, inv, currencyID,
	)
	if err != nil {
		return fmt.Errorf("failed to set ticker for currency %d: %w", currencyID, err)
	}

	r.log.Debug().
		Int64("currency_id", currencyID).
		Str("ticker", symbol).
		Bool("inverse", inverse).
		Msg("Cached ticker")

	return nil
}

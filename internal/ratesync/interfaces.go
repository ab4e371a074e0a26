package ratesync

import (
	"context"
	"time"

	"github.com/avolkov/fxsync/internal/clients/yahoo"
	"github.com/avolkov/fxsync/internal/domain"
)

// RateStore is the persistence contract the engine needs for rate rows.
// Satisfied by rates.Repository; tests use in-memory mocks.
type RateStore interface {
	Exists(currencyID int64, date time.Time) (bool, error)
	GetRange(currencyID int64, from, to time.Time) ([]domain.ExchangeRate, error)
	LatestDate(currencyID int64) (*time.Time, error)
	LatestBefore(currencyID int64, date time.Time) (*float64, error)
	LastRecords(currencyID int64, n int) ([]domain.ExchangeRate, error)
	InsertBatch(records []domain.ExchangeRate) ([]domain.ExchangeRate, error)
	Update(currencyID int64, date time.Time, rate float64) (bool, error)
	CleanInvalid() (int64, error)
}

// CurrencyStore lists tracked currencies and caches discovered tickers.
// Satisfied by currency.Repository.
type CurrencyStore interface {
	AllExcept(code string) ([]domain.Currency, error)
	GetTicker(currencyID int64) (*domain.TickerResolution, error)
	SetTicker(currencyID int64, symbol string, inverse bool) error
}

// LedgerStore supplies the global baseline for full-history runs.
type LedgerStore interface {
	EarliestDate() (*time.Time, error)
}

// MarketDataProvider returns a sparse daily close series for a symbol.
// Satisfied by yahoo.Client.
type MarketDataProvider interface {
	GetHistory(ctx context.Context, symbol string, from, to time.Time) ([]yahoo.DailyClose, error)
}

// Package domain contains the core value types shared across modules.
package domain

import "time"

// DateFormat is the canonical day-granularity date layout used in the
// database and over the API.
const DateFormat = "2006-01-02"

// Currency is a tracked currency. Rates are always expressed against USD:
// one unit of the currency equals Rate USD.
type Currency struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	// Ticker caches the market-data symbol discovered for this currency.
	// Nil until a synchronization run has resolved one.
	Ticker        *string `json:"ticker,omitempty"`
	TickerInverse bool    `json:"ticker_inverse"`
}

// ExchangeRate is one stored rate point: 1 unit of currency = Rate USD
// on Date (day granularity, UTC).
type ExchangeRate struct {
	CurrencyID int64     `json:"currency_id"`
	Date       time.Time `json:"date"`
	Rate       float64   `json:"rate"`
}

// TickerResolution is the outcome of ticker discovery for a currency.
// Inverse means the symbol quotes USD→currency and closing prices must be
// inverted to obtain currency→USD.
type TickerResolution struct {
	Symbol  string `json:"symbol"`
	Inverse bool   `json:"inverse"`
}

// Transaction is a single ledger entry, recorded in its original currency.
type Transaction struct {
	ID          int64     `json:"id"`
	CurrencyID  int64     `json:"currency_id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, time.UTC)
}

// FormatDay formats t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

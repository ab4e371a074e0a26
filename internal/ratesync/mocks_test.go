package ratesync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/avolkov/fxsync/internal/clients/yahoo"
	"github.com/avolkov/fxsync/internal/domain"
)

// mockRateStore is an in-memory RateStore keyed by (currency, day).
type mockRateStore struct {
	mu    stdsync.Mutex
	rates map[int64]map[string]float64
}

func newMockRateStore() *mockRateStore {
	return &mockRateStore{rates: make(map[int64]map[string]float64)}
}

func (m *mockRateStore) seed(currencyID int64, date string, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rates[currencyID] == nil {
		m.rates[currencyID] = make(map[string]float64)
	}
	m.rates[currencyID][date] = rate
}

func (m *mockRateStore) get(currencyID int64, date string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rate, ok := m.rates[currencyID][date]
	return rate, ok
}

func (m *mockRateStore) count(currencyID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rates[currencyID])
}

func (m *mockRateStore) Exists(currencyID int64, date time.Time) (bool, error) {
	_, ok := m.get(currencyID, domain.FormatDay(date))
	return ok, nil
}

func (m *mockRateStore) GetRange(currencyID int64, from, to time.Time) ([]domain.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ExchangeRate
	for d := domain.Day(from); !d.After(domain.Day(to)); d = d.AddDate(0, 0, 1) {
		if rate, ok := m.rates[currencyID][domain.FormatDay(d)]; ok {
			out = append(out, domain.ExchangeRate{CurrencyID: currencyID, Date: d, Rate: rate})
		}
	}
	return out, nil
}

func (m *mockRateStore) LatestDate(currencyID int64) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest string
	for date := range m.rates[currencyID] {
		if date > latest {
			latest = date
		}
	}
	if latest == "" {
		return nil, nil
	}

	d, err := domain.ParseDay(latest)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *mockRateStore) LatestBefore(currencyID int64, date time.Time) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := domain.FormatDay(date)
	var best string
	for d := range m.rates[currencyID] {
		if d < cutoff && d > best {
			best = d
		}
	}
	if best == "" {
		return nil, nil
	}

	rate := m.rates[currencyID][best]
	return &rate, nil
}

func (m *mockRateStore) LastRecords(currencyID int64, n int) ([]domain.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dates []string
	for d := range m.rates[currencyID] {
		dates = append(dates, d)
	}
	// descending
	for i := 0; i < len(dates); i++ {
		for j := i + 1; j < len(dates); j++ {
			if dates[j] > dates[i] {
				dates[i], dates[j] = dates[j], dates[i]
			}
		}
	}
	if len(dates) > n {
		dates = dates[:n]
	}

	var out []domain.ExchangeRate
	for _, ds := range dates {
		d, err := domain.ParseDay(ds)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ExchangeRate{CurrencyID: currencyID, Date: d, Rate: m.rates[currencyID][ds]})
	}
	return out, nil
}

func (m *mockRateStore) InsertBatch(records []domain.ExchangeRate) ([]domain.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var accepted []domain.ExchangeRate
	for _, rec := range records {
		if m.rates[rec.CurrencyID] == nil {
			m.rates[rec.CurrencyID] = make(map[string]float64)
		}
		key := domain.FormatDay(rec.Date)
		if _, exists := m.rates[rec.CurrencyID][key]; exists {
			continue
		}
		m.rates[rec.CurrencyID][key] = rec.Rate
		accepted = append(accepted, rec)
	}
	return accepted, nil
}

func (m *mockRateStore) Update(currencyID int64, date time.Time, rate float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.FormatDay(date)
	if _, exists := m.rates[currencyID][key]; !exists {
		return false, nil
	}
	m.rates[currencyID][key] = rate
	return true, nil
}

func (m *mockRateStore) CleanInvalid() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for _, byDate := range m.rates {
		for date, rate := range byDate {
			if rate <= 0 {
				delete(byDate, date)
				removed++
			}
		}
	}
	return removed, nil
}

// mockCurrencyStore holds currencies and discovered tickers in memory.
type mockCurrencyStore struct {
	mu         stdsync.Mutex
	currencies []domain.Currency
	tickers    map[int64]domain.TickerResolution
}

func newMockCurrencyStore(currencies ...domain.Currency) *mockCurrencyStore {
	return &mockCurrencyStore{
		currencies: currencies,
		tickers:    make(map[int64]domain.TickerResolution),
	}
}

func (m *mockCurrencyStore) AllExcept(code string) ([]domain.Currency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Currency
	for _, c := range m.currencies {
		if c.Code != code {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCurrencyStore) GetTicker(currencyID int64) (*domain.TickerResolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.tickers[currencyID]; ok {
		r := res
		return &r, nil
	}
	return nil, nil
}

func (m *mockCurrencyStore) SetTicker(currencyID int64, symbol string, inverse bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tickers[currencyID] = domain.TickerResolution{Symbol: symbol, Inverse: inverse}
	return nil
}

// mockLedger returns a fixed earliest transaction date.
type mockLedger struct {
	earliest *time.Time
}

func (m *mockLedger) EarliestDate() (*time.Time, error) {
	return m.earliest, nil
}

// mockProvider serves canned history per symbol and records every call.
type mockProvider struct {
	mu      stdsync.Mutex
	history map[string][]yahoo.DailyClose
	errs    map[string]error
	calls   []string

	// blockUntil, when set, makes GetHistory wait for the channel or
	// context. Used to hold a run open in orchestrator tests.
	blockUntil chan struct{}
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		history: make(map[string][]yahoo.DailyClose),
		errs:    make(map[string]error),
	}
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockProvider) GetHistory(ctx context.Context, symbol string, from, to time.Time) ([]yahoo.DailyClose, error) {
	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	block := m.blockUntil
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := m.errs[symbol]; ok {
		return nil, err
	}

	series, ok := m.history[symbol]
	if !ok {
		return nil, yahoo.ErrNotFound
	}

	var out []yahoo.DailyClose
	for _, q := range series {
		d := domain.Day(q.Date)
		if !d.Before(domain.Day(from)) && !d.After(domain.Day(to)) {
			out = append(out, q)
		}
	}
	return out, nil
}

// recordingEmitter captures every event for assertions.
type recordingEmitter struct {
	mu        stdsync.Mutex
	progress  []string
	started   []string
	written   []writtenRate
	completed *[2]int
	failed    []string
	cancelled bool
}

type writtenRate struct {
	code string
	rate float64
	date string
}

func newRecordingEmitter() *recordingEmitter { return &recordingEmitter{} }

func (e *recordingEmitter) OnProgress(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = append(e.progress, message)
}

func (e *recordingEmitter) OnCurrencyStarted(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, code)
}

func (e *recordingEmitter) OnRateWritten(code string, rate float64, date time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.written = append(e.written, writtenRate{code: code, rate: rate, date: domain.FormatDay(date)})
}

func (e *recordingEmitter) OnCompleted(processed, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = &[2]int{processed, total}
}

func (e *recordingEmitter) OnFailed(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, message)
}

func (e *recordingEmitter) OnCancelled() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
}

func (e *recordingEmitter) writtenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.written)
}

// quotes builds a daily close series from (date, close) pairs.
func quotes(pairs ...any) []yahoo.DailyClose {
	var out []yahoo.DailyClose
	for i := 0; i < len(pairs); i += 2 {
		d, err := domain.ParseDay(pairs[i].(string))
		if err != nil {
			panic(err)
		}
		out = append(out, yahoo.DailyClose{Date: d, Close: pairs[i+1].(float64)})
	}
	return out
}

func mustDay(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fixedNow(s string) func() time.Time {
	d := mustDay(s)
	return func() time.Time { return d }
}

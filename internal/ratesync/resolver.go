package ratesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/clients/yahoo"
	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/domain"
)

// ErrNoWorkingTicker is returned when every candidate symbol for a
// currency was exhausted without a single valid quote. The caller skips
// the currency for the run; it is not a fatal condition.
var ErrNoWorkingTicker = errors.New("no working ticker for currency")

// tickerCandidates are the symbol forms tried for one currency, direct
// quotes before inverse ones.
type tickerCandidates struct {
	primary []string
	inverse []string
}

// tickerOverrides lists currencies whose canonical provider symbols are
// not the mechanically generated defaults.
var tickerOverrides = map[string]tickerCandidates{
	"RUB": {primary: []string{"RUBUSD=X", "RUB=X"}, inverse: []string{"USDRUB=X", "USD/RUB=X"}},
	"EUR": {primary: []string{"EURUSD=X", "EUR=X"}, inverse: []string{"USDEUR=X", "USD/EUR=X"}},
	"CNY": {primary: []string{"CNYUSD=X", "CNY=X"}, inverse: []string{"USDCNY=X", "USD/CNY=X"}},
	"TRY": {primary: []string{"TRYUSD=X", "TRY=X"}, inverse: []string{"USDTRY=X", "USD/TRY=X"}},
	"VND": {primary: []string{"VNDUSD=X", "VND=X"}, inverse: []string{"USDVND=X", "USD/VND=X"}},
}

// candidatesFor returns the ordered candidate lists for a currency code.
func candidatesFor(code string) tickerCandidates {
	if c, ok := tickerOverrides[code]; ok {
		return c
	}

	return tickerCandidates{
		primary: []string{
			code + "USD=X",
			code + "/USD",
			code + "USD",
		},
		inverse: []string{
			"USD" + code + "=X",
			"USD/" + code,
			"USD" + code,
		},
	}
}

// TickerResolver discovers which provider symbol prices a currency and
// in which orientation, caching the answer on the currency record.
type TickerResolver struct {
	currencies CurrencyStore
	provider   MarketDataProvider
	cfg        config.SyncConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewTickerResolver creates a ticker resolver.
func NewTickerResolver(currencies CurrencyStore, provider MarketDataProvider, cfg config.SyncConfig, log zerolog.Logger) *TickerResolver {
	return &TickerResolver{
		currencies: currencies,
		provider:   provider,
		cfg:        cfg,
		log:        log.With().Str("component", "ticker_resolver").Logger(),
		now:        time.Now,
	}
}

// Resolve returns the working ticker for a currency. A cached resolution
// is returned without touching the provider; otherwise candidates are
// probed primary-before-inverse and the winner is persisted.
// ErrNoWorkingTicker means every candidate was exhausted.
func (r *TickerResolver) Resolve(ctx context.Context, cur domain.Currency) (domain.TickerResolution, error) {
	cached, err := r.currencies.GetTicker(cur.ID)
	if err != nil {
		return domain.TickerResolution{}, fmt.Errorf("failed to read cached ticker for %s: %w", cur.Code, err)
	}
	if cached != nil {
		return *cached, nil
	}

	candidates := candidatesFor(cur.Code)

	for _, trial := range []struct {
		symbols []string
		inverse bool
	}{
		{candidates.primary, false},
		{candidates.inverse, true},
	} {
		for _, symbol := range trial.symbols {
			if err := ctx.Err(); err != nil {
				return domain.TickerResolution{}, err
			}

			if !r.probe(ctx, symbol) {
				continue
			}

			res := domain.TickerResolution{Symbol: symbol, Inverse: trial.inverse}
			if err := r.currencies.SetTicker(cur.ID, res.Symbol, res.Inverse); err != nil {
				// Discovery still succeeded; the cache write is retried
				// on the next run.
				r.log.Warn().Err(err).Str("currency", cur.Code).Str("symbol", symbol).
					Msg("Failed to persist discovered ticker")
			}

			r.log.Info().
				Str("currency", cur.Code).
				Str("symbol", symbol).
				Bool("inverse", res.Inverse).
				Msg("Resolved ticker for currency")

			return res, nil
		}
	}

	return domain.TickerResolution{}, fmt.Errorf("%w: %s", ErrNoWorkingTicker, cur.Code)
}

// probe reports whether a symbol returns at least one valid quote over a
// short recent window. Provider failures of any kind are soft here; a
// flaky provider must not abort candidate iteration.
func (r *TickerResolver) probe(ctx context.Context, symbol string) bool {
	to := domain.Day(r.now())
	from := to.Add(-r.cfg.ProbeWindow)

	series, err := r.provider.GetHistory(ctx, symbol, from, to)
	if err != nil {
		if !errors.Is(err, yahoo.ErrNotFound) {
			r.log.Debug().Err(err).Str("symbol", symbol).Msg("Ticker probe failed")
		}
		return false
	}

	for _, q := range series {
		if validQuote(q.Close) {
			return true
		}
	}

	return false
}

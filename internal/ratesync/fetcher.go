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

// RateFetcher turns a list of wanted dates into currency→USD rates by
// bulk-querying the provider once per currency and normalizing the
// result.
type RateFetcher struct {
	rates    RateStore
	provider MarketDataProvider
	cfg      config.SyncConfig
	emitter  Emitter
	log      zerolog.Logger
}

// NewRateFetcher creates a rate fetcher.
func NewRateFetcher(rates RateStore, provider MarketDataProvider, cfg config.SyncConfig, emitter Emitter, log zerolog.Logger) *RateFetcher {
	return &RateFetcher{
		rates:    rates,
		provider: provider,
		cfg:      cfg,
		emitter:  emitter,
		log:      log.With().Str("component", "rate_fetcher").Logger(),
	}
}

// Fetch retrieves rates for the requested dates. The provider is queried
// once over [min, max] of the deduplicated dates; responses are validated,
// inverted when the resolution demands it, and trimmed to the requested
// dates. Weekend dates the provider has no quote for fall back to the
// most recent prior stored rate; weekday gaps are left unresolved.
//
// A provider failure is treated as an empty series, not an error, so a
// flaky provider degrades to fallback-only behavior instead of aborting
// the currency.
func (f *RateFetcher) Fetch(ctx context.Context, cur domain.Currency, res domain.TickerResolution, dates []time.Time) (map[time.Time]float64, error) {
	wanted := dedupeDays(dates)
	if len(wanted) == 0 {
		return map[time.Time]float64{}, nil
	}

	from := wanted[0]
	to := wanted[len(wanted)-1]

	f.emitter.OnProgress(fmt.Sprintf("Fetching %s rates from %s to %s", cur.Code, domain.FormatDay(from), domain.FormatDay(to)))

	series, err := f.provider.GetHistory(ctx, res.Symbol, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Warn().Err(err).
			Str("currency", cur.Code).
			Str("symbol", res.Symbol).
			Msg("Provider returned no data, continuing with store fallback only")
		series = nil
	}

	wantedSet := make(map[time.Time]bool, len(wanted))
	for _, d := range wanted {
		wantedSet[d] = true
	}

	result := make(map[time.Time]float64, len(wanted))
	for _, q := range series {
		d := domain.Day(q.Date)
		if !wantedSet[d] {
			// Padding artifact, not a requested date
			continue
		}
		if !validQuote(q.Close) {
			continue
		}

		rate := q.Close
		if res.Inverse {
			rate = 1.0 / q.Close
		}
		result[d] = rate
	}

	// Walk the wanted dates in order so a weekend can reuse a rate
	// resolved earlier in this same fetch, which the store does not
	// hold yet.
	var prev *float64
	for _, d := range wanted {
		if rate, ok := result[d]; ok {
			r := rate
			prev = &r
			continue
		}

		if !domain.IsWeekend(d) {
			// A weekday the market traded but the provider has no quote
			// for. Guessing would fabricate history.
			f.emitter.OnProgress(fmt.Sprintf("No rate for %s on %s, leaving unresolved", cur.Code, domain.FormatDay(d)))
			continue
		}

		if prev == nil {
			fallback, err := f.rates.LatestBefore(cur.ID, d)
			if err != nil {
				return nil, fmt.Errorf("failed to get fallback rate for %s on %s: %w", cur.Code, domain.FormatDay(d), err)
			}
			if fallback == nil {
				continue
			}
			prev = fallback
		}

		result[d] = *prev
	}

	return result, nil
}

func validQuote(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// dedupeDays normalizes to UTC midnight, removes duplicates and returns
// the dates ascending.
func dedupeDays(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	var out []time.Time
	for _, d := range dates {
		day := domain.Day(d)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, day)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

package ratesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/domain"
)

func testFetcher(store *mockRateStore, provider *mockProvider, emitter Emitter) *RateFetcher {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return NewRateFetcher(store, provider, config.DefaultSyncConfig(), emitter, zerolog.New(nil).Level(zerolog.Disabled))
}

func days(ss ...string) []time.Time {
	var out []time.Time
	for _, s := range ss {
		out = append(out, mustDay(s))
	}
	return out
}

func TestFetch_DirectOrientation(t *testing.T) {
	provider := newMockProvider()
	provider.history["EURUSD=X"] = quotes(
		"2024-01-08", 1.0931,
		"2024-01-09", 1.0940,
	)

	f := testFetcher(newMockRateStore(), provider, nil)
	eur := domain.Currency{ID: 1, Code: "EUR"}
	res := domain.TickerResolution{Symbol: "EURUSD=X"}

	rates, err := f.Fetch(context.Background(), eur, res, days("2024-01-08", "2024-01-09"))
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, 1.0931, rates[mustDay("2024-01-08")])
	assert.Equal(t, 1.0940, rates[mustDay("2024-01-09")])

	// One bulk call covers the whole span
	assert.Equal(t, 1, provider.callCount())
}

func TestFetch_InverseOrientationRoundTrip(t *testing.T) {
	provider := newMockProvider()
	provider.history["USDVND=X"] = quotes("2024-01-08", 25450.0)

	f := testFetcher(newMockRateStore(), provider, nil)
	vnd := domain.Currency{ID: 1, Code: "VND"}
	res := domain.TickerResolution{Symbol: "USDVND=X", Inverse: true}

	rates, err := f.Fetch(context.Background(), vnd, res, days("2024-01-08"))
	require.NoError(t, err)

	stored := rates[mustDay("2024-01-08")]
	assert.InDelta(t, 1.0/25450.0, stored, 1e-12)

	// Re-deriving the USD quote from the stored rate reproduces the close
	assert.InDelta(t, 25450.0, 1.0/stored, 1e-6)
}

func TestFetch_DropsInvalidAndUnrequestedPoints(t *testing.T) {
	provider := newMockProvider()
	provider.history["EURUSD=X"] = quotes(
		"2024-01-08", 1.0931,
		"2024-01-09", -2.0, // invalid, dropped
		"2024-01-10", 1.0955, // not requested
	)

	f := testFetcher(newMockRateStore(), provider, nil)
	eur := domain.Currency{ID: 1, Code: "EUR"}

	rates, err := f.Fetch(context.Background(), eur, domain.TickerResolution{Symbol: "EURUSD=X"},
		days("2024-01-08", "2024-01-09", "2024-01-10"))
	require.NoError(t, err)

	// 01-10 was requested and valid; 01-09 was dropped
	assert.Equal(t, 1.0931, rates[mustDay("2024-01-08")])
	_, has := rates[mustDay("2024-01-09")]
	assert.False(t, has)
	assert.Equal(t, 1.0955, rates[mustDay("2024-01-10")])
}

func TestFetch_WeekendFallbackAndWeekdayGap(t *testing.T) {
	// 2024-01-05 is a Friday; 01-06/01-07 are the weekend
	provider := newMockProvider()
	provider.history["EURUSD=X"] = quotes(
		"2024-01-03", 1.0925,
		"2024-01-05", 1.0940,
	)

	emitter := newRecordingEmitter()
	f := testFetcher(newMockRateStore(), provider, emitter)
	eur := domain.Currency{ID: 1, Code: "EUR"}

	rates, err := f.Fetch(context.Background(), eur, domain.TickerResolution{Symbol: "EURUSD=X"},
		days("2024-01-03", "2024-01-04", "2024-01-05", "2024-01-06", "2024-01-07"))
	require.NoError(t, err)

	// Weekend reuses the Friday close fetched in this same batch
	assert.Equal(t, 1.0940, rates[mustDay("2024-01-06")])
	assert.Equal(t, 1.0940, rates[mustDay("2024-01-07")])

	// Thursday had no quote and stays unresolved, with a note
	_, has := rates[mustDay("2024-01-04")]
	assert.False(t, has)
	assert.Len(t, rates, 4)
}

func TestFetch_WeekendFallbackFromStore(t *testing.T) {
	// Provider has nothing; the store holds an older rate
	store := newMockRateStore()
	store.seed(1, "2024-01-05", 1.0940)

	provider := newMockProvider()
	provider.history["EURUSD=X"] = nil

	f := testFetcher(store, provider, nil)
	eur := domain.Currency{ID: 1, Code: "EUR"}

	rates, err := f.Fetch(context.Background(), eur, domain.TickerResolution{Symbol: "EURUSD=X"},
		days("2024-01-06", "2024-01-07"))
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, 1.0940, rates[mustDay("2024-01-06")])
	assert.Equal(t, 1.0940, rates[mustDay("2024-01-07")])
}

func TestFetch_ProviderFailureDegradesToFallback(t *testing.T) {
	store := newMockRateStore()
	store.seed(1, "2024-01-05", 1.0940)

	provider := newMockProvider()
	provider.errs["EURUSD=X"] = errors.New("upstream timeout")

	f := testFetcher(store, provider, nil)
	eur := domain.Currency{ID: 1, Code: "EUR"}

	rates, err := f.Fetch(context.Background(), eur, domain.TickerResolution{Symbol: "EURUSD=X"},
		days("2024-01-06", "2024-01-08"))
	require.NoError(t, err)

	// Saturday resolved from the store, Monday left alone
	assert.Equal(t, 1.0940, rates[mustDay("2024-01-06")])
	_, has := rates[mustDay("2024-01-08")]
	assert.False(t, has)
}

func TestFetch_NoDates(t *testing.T) {
	provider := newMockProvider()
	f := testFetcher(newMockRateStore(), provider, nil)

	rates, err := f.Fetch(context.Background(), domain.Currency{ID: 1, Code: "EUR"},
		domain.TickerResolution{Symbol: "EURUSD=X"}, nil)
	require.NoError(t, err)
	assert.Empty(t, rates)
	assert.Equal(t, 0, provider.callCount())
}

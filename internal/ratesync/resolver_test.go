package ratesync

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/domain"
)

func testResolver(currencies *mockCurrencyStore, provider *mockProvider, today string) *TickerResolver {
	r := NewTickerResolver(currencies, provider, config.DefaultSyncConfig(), zerolog.New(nil).Level(zerolog.Disabled))
	r.now = fixedNow(today)
	return r
}

func TestResolve_CachedTickerSkipsProvider(t *testing.T) {
	currencies := newMockCurrencyStore()
	require.NoError(t, currencies.SetTicker(1, "EURUSD=X", false))

	provider := newMockProvider()
	r := testResolver(currencies, provider, "2024-06-10")

	res, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD=X", res.Symbol)
	assert.False(t, res.Inverse)
	assert.Equal(t, 0, provider.callCount())
}

func TestResolve_FallsThroughToSecondPrimaryCandidate(t *testing.T) {
	currencies := newMockCurrencyStore()
	provider := newMockProvider()
	// "EURUSD=X" is absent from the provider; "EUR=X" works
	provider.history["EUR=X"] = quotes("2024-06-07", 1.0931)

	r := testResolver(currencies, provider, "2024-06-10")

	res, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "EUR=X", res.Symbol)
	assert.False(t, res.Inverse)

	// The discovery is persisted: resolving again makes zero new calls
	callsAfterFirst := provider.callCount()
	res2, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, res, res2)
	assert.Equal(t, callsAfterFirst, provider.callCount())
}

func TestResolve_InverseCandidateWins(t *testing.T) {
	currencies := newMockCurrencyStore()
	provider := newMockProvider()
	provider.history["USDVND=X"] = quotes("2024-06-07", 25450.0)

	r := testResolver(currencies, provider, "2024-06-10")

	res, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "VND"})
	require.NoError(t, err)
	assert.Equal(t, "USDVND=X", res.Symbol)
	assert.True(t, res.Inverse)

	// All primary override candidates were tried first
	assert.Equal(t, []string{"VNDUSD=X", "VND=X", "USDVND=X"}, provider.calls)
}

func TestResolve_OverridesTakePrecedenceOverGeneratedForms(t *testing.T) {
	currencies := newMockCurrencyStore()
	provider := newMockProvider()
	provider.history["RUBUSD=X"] = quotes("2024-06-07", 0.0113)

	r := testResolver(currencies, provider, "2024-06-10")

	res, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "RUB"})
	require.NoError(t, err)
	assert.Equal(t, "RUBUSD=X", res.Symbol)
	assert.Equal(t, []string{"RUBUSD=X"}, provider.calls)
}

func TestResolve_InvalidQuotesDoNotCount(t *testing.T) {
	currencies := newMockCurrencyStore()
	provider := newMockProvider()
	// First candidate answers, but only with junk
	provider.history["XYZUSD=X"] = quotes("2024-06-07", -1.0)
	provider.history["XYZ/USD"] = quotes("2024-06-07", 0.25)

	r := testResolver(currencies, provider, "2024-06-10")

	res, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "XYZ/USD", res.Symbol)
}

func TestResolve_UnexpectedProviderErrorIsSoft(t *testing.T) {
	currencies := newMockCurrencyStore()
	provider := newMockProvider()
	provider.errs["XYZUSD=X"] = errors.New("connection reset")
	provider.history["XYZ/USD"] = quotes("2024-06-07", 0.25)

	r := testResolver(currencies, provider, "2024-06-10")

	res, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "XYZ/USD", res.Symbol)
}

func TestResolve_AllCandidatesExhausted(t *testing.T) {
	currencies := newMockCurrencyStore()
	provider := newMockProvider()

	r := testResolver(currencies, provider, "2024-06-10")

	_, err := r.Resolve(context.Background(), domain.Currency{ID: 1, Code: "XYZ"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoWorkingTicker)

	// Both generated lists tried, primary before inverse
	assert.Equal(t, []string{
		"XYZUSD=X", "XYZ/USD", "XYZUSD",
		"USDXYZ=X", "USD/XYZ", "USDXYZ",
	}, provider.calls)

	// Nothing was cached
	cached, err := currencies.GetTicker(1)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

package ratesync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/config"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateAnalyzing   State = "analyzing"
	StateReconciling State = "reconciling"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// ErrRunInProgress is returned by Start while a run is already active.
// Runs are never interleaved; the provider has no concurrency contract.
var ErrRunInProgress = errors.New("synchronization already in progress")

// SkippedCurrency records why a currency produced no writes this run.
type SkippedCurrency struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Result is the terminal summary of a run.
type Result struct {
	Processed int               `json:"processed"`
	Total     int               `json:"total"`
	Cleaned   int64             `json:"cleaned"`
	Skipped   []SkippedCurrency `json:"skipped,omitempty"`
}

// RunHandle identifies one started run.
type RunHandle struct {
	ID   string       `json:"id"`
	Mode BaselineMode `json:"mode"`
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	State     State        `json:"state"`
	RunID     string       `json:"run_id,omitempty"`
	Mode      BaselineMode `json:"mode,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Error     string       `json:"error,omitempty"`
	Result    *Result      `json:"result,omitempty"`
}

// Orchestrator sequences gap analysis, ticker resolution, fetching and
// reconciliation across all tracked currencies, one run at a time.
type Orchestrator struct {
	currencies CurrencyStore
	ledger     LedgerStore
	analyzer   *GapAnalyzer
	resolver   *TickerResolver
	fetcher    *RateFetcher
	reconciler *Reconciler
	emitter    Emitter
	cfg        config.SyncConfig
	log        zerolog.Logger
	now        func() time.Time

	baseCurrency string

	mu        stdsync.Mutex
	state     State
	runID     string
	mode      BaselineMode
	startedAt time.Time
	lastErr   string
	result    *Result
	cancel    context.CancelFunc
	done      chan struct{}
}

// Deps bundles the collaborators an Orchestrator needs.
type Deps struct {
	Currencies CurrencyStore
	Ledger     LedgerStore
	Rates      RateStore
	Provider   MarketDataProvider
	Emitter    Emitter

	// BaseCurrency is never synchronized against itself.
	BaseCurrency string
}

// New wires up a complete engine.
func New(deps Deps, cfg config.SyncConfig, log zerolog.Logger) *Orchestrator {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = NopEmitter{}
	}

	return &Orchestrator{
		currencies:   deps.Currencies,
		ledger:       deps.Ledger,
		analyzer:     NewGapAnalyzer(deps.Rates, cfg, emitter, log),
		resolver:     NewTickerResolver(deps.Currencies, deps.Provider, cfg, log),
		fetcher:      NewRateFetcher(deps.Rates, deps.Provider, cfg, emitter, log),
		reconciler:   NewReconciler(deps.Rates, cfg, emitter, log),
		emitter:      emitter,
		cfg:          cfg,
		log:          log.With().Str("component", "sync_orchestrator").Logger(),
		now:          time.Now,
		baseCurrency: deps.BaseCurrency,
		state:        StateIdle,
	}
}

// Start launches a run in the background and returns its handle.
// A second start while a run is active is rejected, not queued.
func (o *Orchestrator) Start(mode BaselineMode) (RunHandle, error) {
	if mode != BaselineFirstTransaction && mode != BaselineLastKnownRate {
		return RunHandle{}, fmt.Errorf("unknown baseline mode %q", mode)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateAnalyzing || o.state == StateReconciling {
		return RunHandle{}, ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())

	o.state = StateAnalyzing
	o.runID = uuid.New().String()
	o.mode = mode
	o.startedAt = o.now()
	o.lastErr = ""
	o.result = nil
	o.cancel = cancel
	o.done = make(chan struct{})

	handle := RunHandle{ID: o.runID, Mode: mode}

	o.log.Info().Str("run_id", handle.ID).Str("mode", string(mode)).Msg("Starting synchronization run")

	go o.run(ctx, mode, o.done)

	return handle, nil
}

// Cancel requests cooperative cancellation of the active run. It is a
// no-op when nothing is running.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil && (o.state == StateAnalyzing || o.state == StateReconciling) {
		o.log.Info().Str("run_id", o.runID).Msg("Cancellation requested")
		o.cancel()
	}
}

// Running reports whether a run is currently active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateAnalyzing || o.state == StateReconciling
}

// Status returns a snapshot of the current or most recent run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		State: o.state,
		RunID: o.runID,
		Mode:  o.mode,
		Error: o.lastErr,
	}
	if !o.startedAt.IsZero() {
		t := o.startedAt
		st.StartedAt = &t
	}
	if o.result != nil {
		r := *o.result
		st.Result = &r
	}

	return st
}

// Wait blocks until the active run finishes. Used by tests and by
// shutdown; returns immediately when nothing is running.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		<-done
	}
}

// SuggestMode picks the startup baseline: a full-history pass when any
// tracked currency has no rates yet, an incremental pass otherwise.
func (o *Orchestrator) SuggestMode() (BaselineMode, error) {
	currencies, err := o.currencies.AllExcept(o.baseCurrency)
	if err != nil {
		return "", fmt.Errorf("failed to list currencies: %w", err)
	}

	for _, cur := range currencies {
		latest, err := o.analyzer.rates.LatestDate(cur.ID)
		if err != nil {
			return "", fmt.Errorf("failed to check rates for %s: %w", cur.Code, err)
		}
		if latest == nil {
			return BaselineFirstTransaction, nil
		}
	}

	return BaselineLastKnownRate, nil
}

func (o *Orchestrator) run(ctx context.Context, mode BaselineMode, done chan struct{}) {
	defer close(done)

	result, err := o.execute(ctx, mode)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancel = nil

	switch {
	case ctx.Err() != nil:
		o.state = StateCancelled
		o.result = result
		o.log.Info().Str("run_id", o.runID).Msg("Synchronization cancelled")
		o.emitter.OnCancelled()
	case err != nil:
		o.state = StateFailed
		o.lastErr = err.Error()
		o.log.Error().Err(err).Str("run_id", o.runID).Msg("Synchronization failed")
		o.emitter.OnFailed(err.Error())
	default:
		o.state = StateCompleted
		o.result = result
		o.log.Info().
			Str("run_id", o.runID).
			Int("processed", result.Processed).
			Int("total", result.Total).
			Msg("Synchronization completed")
		o.emitter.OnCompleted(result.Processed, result.Total)
	}
}

// execute runs the two-stage pipeline. Per-currency problems are
// recorded in the result and never fail the run; only setup-level errors
// (currency list, baseline) do.
func (o *Orchestrator) execute(ctx context.Context, mode BaselineMode) (*Result, error) {
	result := &Result{}

	currencies, err := o.currencies.AllExcept(o.baseCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	if len(currencies) == 0 {
		o.emitter.OnProgress("No currencies to synchronize")
		return result, nil
	}

	var globalBaseline *time.Time
	if mode == BaselineFirstTransaction {
		globalBaseline, err = o.ledger.EarliestDate()
		if err != nil {
			return nil, fmt.Errorf("failed to determine baseline date: %w", err)
		}
		if globalBaseline == nil {
			return nil, fmt.Errorf("cannot determine baseline: ledger has no transactions")
		}
	}

	o.emitter.OnProgress("Cleaning invalid exchange rates")
	cleaned, err := o.reconciler.CleanStore()
	if err != nil {
		return nil, err
	}
	result.Cleaned = cleaned

	plans, err := o.analyzer.Analyze(ctx, currencies, mode, globalBaseline)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return nil, fmt.Errorf("gap analysis failed: %w", err)
	}

	for _, plan := range plans {
		result.Total += plan.Operations()
	}

	o.mu.Lock()
	o.state = StateReconciling
	o.mu.Unlock()

	for _, plan := range plans {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		o.emitter.OnCurrencyStarted(plan.Currency.Code)

		processed, err := o.processCurrency(ctx, plan)
		result.Processed += processed
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			reason := err.Error()
			if errors.Is(err, ErrNoWorkingTicker) {
				reason = "no working ticker"
			}
			o.log.Warn().Err(err).Str("currency", plan.Currency.Code).Msg("Currency skipped")
			o.emitter.OnProgress(fmt.Sprintf("Skipping %s: %s", plan.Currency.Code, reason))
			result.Skipped = append(result.Skipped, SkippedCurrency{Code: plan.Currency.Code, Reason: reason})
		}
	}

	return result, nil
}

func (o *Orchestrator) processCurrency(ctx context.Context, plan Plan) (int, error) {
	res, err := o.resolver.Resolve(ctx, plan.Currency)
	if err != nil {
		return 0, err
	}

	missing := map[time.Time]float64{}
	if len(plan.MissingDates) > 0 {
		missing, err = o.fetcher.Fetch(ctx, plan.Currency, res, plan.MissingDates)
		if err != nil {
			return 0, err
		}
	}

	// Only records still inside the refresh window are worth a second
	// provider call.
	refreshed := map[time.Time]float64{}
	eligible := o.reconciler.EligibleRefreshables(plan.Refreshables)
	if len(eligible) > 0 {
		dates := make([]time.Time, 0, len(eligible))
		for _, rec := range eligible {
			dates = append(dates, rec.Date)
		}

		refreshed, err = o.fetcher.Fetch(ctx, plan.Currency, res, dates)
		if err != nil {
			return 0, err
		}
	}

	applied, err := o.reconciler.Reconcile(ctx, plan.Currency, missing, plan.Refreshables, refreshed)
	processed := applied.Inserted + applied.Updated
	if err != nil {
		return processed, err
	}

	return processed, nil
}

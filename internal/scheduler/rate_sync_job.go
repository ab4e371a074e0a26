package scheduler

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/ratesync"
)

// RateSyncEngine is the slice of the orchestrator the job needs.
type RateSyncEngine interface {
	Start(mode ratesync.BaselineMode) (ratesync.RunHandle, error)
	SuggestMode() (ratesync.BaselineMode, error)
}

// RateSyncJob kicks off the nightly exchange-rate synchronization. A run
// already in flight is left alone; the next scheduled slot tries again.
type RateSyncJob struct {
	engine RateSyncEngine
	log    zerolog.Logger
}

// NewRateSyncJob creates the nightly sync job.
func NewRateSyncJob(engine RateSyncEngine, log zerolog.Logger) *RateSyncJob {
	return &RateSyncJob{
		engine: engine,
		log:    log.With().Str("job", "rate_sync").Logger(),
	}
}

// Name implements Job.
func (j *RateSyncJob) Name() string { return "rate_sync" }

// Run implements Job.
func (j *RateSyncJob) Run() error {
	mode, err := j.engine.SuggestMode()
	if err != nil {
		return err
	}

	handle, err := j.engine.Start(mode)
	if err != nil {
		if errors.Is(err, ratesync.ErrRunInProgress) {
			j.log.Info().Msg("Synchronization already running, skipping scheduled start")
			return nil
		}
		return err
	}

	j.log.Info().Str("run_id", handle.ID).Str("mode", string(mode)).Msg("Scheduled synchronization started")
	return nil
}

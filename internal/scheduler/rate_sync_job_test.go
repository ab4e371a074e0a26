package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/fxsync/internal/ratesync"
)

type mockEngine struct {
	mode     ratesync.BaselineMode
	startErr error
	started  []ratesync.BaselineMode
}

func (m *mockEngine) SuggestMode() (ratesync.BaselineMode, error) {
	return m.mode, nil
}

func (m *mockEngine) Start(mode ratesync.BaselineMode) (ratesync.RunHandle, error) {
	if m.startErr != nil {
		return ratesync.RunHandle{}, m.startErr
	}
	m.started = append(m.started, mode)
	return ratesync.RunHandle{ID: "run-1", Mode: mode}, nil
}

func TestRateSyncJob_StartsSuggestedMode(t *testing.T) {
	engine := &mockEngine{mode: ratesync.BaselineLastKnownRate}
	job := NewRateSyncJob(engine, zerolog.New(nil).Level(zerolog.Disabled))

	require.NoError(t, job.Run())
	assert.Equal(t, []ratesync.BaselineMode{ratesync.BaselineLastKnownRate}, engine.started)
}

func TestRateSyncJob_ActiveRunIsNotAnError(t *testing.T) {
	engine := &mockEngine{mode: ratesync.BaselineLastKnownRate, startErr: ratesync.ErrRunInProgress}
	job := NewRateSyncJob(engine, zerolog.New(nil).Level(zerolog.Disabled))

	assert.NoError(t, job.Run())
}

func TestRateSyncJob_OtherStartErrorsPropagate(t *testing.T) {
	engine := &mockEngine{mode: ratesync.BaselineLastKnownRate, startErr: errors.New("db locked")}
	job := NewRateSyncJob(engine, zerolog.New(nil).Level(zerolog.Disabled))

	assert.Error(t, job.Run())
}

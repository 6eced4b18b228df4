package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/HamedShams/manager-am/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSvc struct {
	triggers []string
	err      error
}

func (f *fakeSvc) SnapshotUtilization(ctx context.Context, trigger string) error {
	f.triggers = append(f.triggers, trigger)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	return f.err
}

func testConfig() config.Config {
	return config.Config{TZ: "Europe/Madrid", SnapshotCron: "0 7 * * MON"}
}

func TestNewCron_RejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotCron = "every monday"
	_, err := NewCron(cfg, zerolog.Nop(), &fakeSvc{})
	require.Error(t, err)
}

func TestSnapshot_RunsWithCronTrigger(t *testing.T) {
	svc := &fakeSvc{}
	cr, err := NewCron(testConfig(), zerolog.Nop(), svc)
	require.NoError(t, err)

	cr.snapshot()
	assert.Equal(t, []string{"cron"}, svc.triggers)
}

func TestSnapshot_ToleratesHeldLockAndFailures(t *testing.T) {
	for _, e := range []error{services.ErrSnapshotRunning, errors.New("boom")} {
		svc := &fakeSvc{err: e}
		cr, err := NewCron(testConfig(), zerolog.Nop(), svc)
		require.NoError(t, err)
		assert.NotPanics(t, cr.snapshot)
		assert.Len(t, svc.triggers, 1)
	}
}

func TestStartStop(t *testing.T) {
	cr, err := NewCron(testConfig(), zerolog.Nop(), &fakeSvc{})
	require.NoError(t, err)
	cr.Start()
	cr.Stop()
}

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRunsJobWithDeadline(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	var hadDeadline bool
	id, err := s.Add("deadline-check", "@every 1h", func(ctx context.Context) (int, error) {
		_, hadDeadline = ctx.Deadline()
		return 1, nil
	})
	require.NoError(t, err)

	s.cron.Entry(id).WrappedJob.Run()
	assert.True(t, hadDeadline)
}

func TestSchedulerRecoversFromPanicsAndErrors(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	id, err := s.Add("panics", "@every 1h", func(context.Context) (int, error) {
		panic("boom")
	})
	require.NoError(t, err)
	assert.NotPanics(t, func() { s.cron.Entry(id).WrappedJob.Run() })

	id, err = s.Add("fails", "@every 1h", func(context.Context) (int, error) {
		return 0, errors.New("nope")
	})
	require.NoError(t, err)
	assert.NotPanics(t, func() { s.cron.Entry(id).WrappedJob.Run() })
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	_, err := s.Add("bad", "every so often", func(context.Context) (int, error) { return 0, nil })
	assert.Error(t, err)
}

func TestSchedulerStopCancelsJobs(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Minute)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Error(t, s.ctx.Err())
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestJob_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var runs atomic.Int32
	job := NewJob("index", "@every 1s", func(context.Context) error {
		if runs.Add(1) == 2 {
			cancel()
		}
		return errors.New("boom")
	}, nil)

	require.NoError(t, job.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestJob_InvalidSchedule(t *testing.T) {
	job := NewJob("index", "every tuesday", func(context.Context) error { return nil }, nil)
	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "invalid schedule")
}

package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/mocks/memory"
)

func TestNewRunnerRequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Config: config.ReaperConfig{Interval: time.Minute, BatchSize: 10}})
	require.Error(t, err)
}

func TestRunnerRunReturnsOnCancel(t *testing.T) {
	r, err := NewRunner(RunnerOptions{
		Repo:   memory.NewIdempotencyRepo(),
		Config: config.ReaperConfig{Interval: time.Minute, BatchSize: 10},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
}

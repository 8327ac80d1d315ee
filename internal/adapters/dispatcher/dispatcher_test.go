package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/internal/observability/statsd"
)

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatchReturnsImmediatelyAndRuns(t *testing.T) {
	d := New(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	ran := make(chan struct{})

	start := time.Now()
	require.NoError(t, d.Dispatch(Task{Name: "slow", Run: func(context.Context) error {
		<-release
		close(ran)
		return nil
	}}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	<-ran
	closeDispatcher(t, d)
}

func TestWorkersBoundConcurrency(t *testing.T) {
	d := New(Options{Workers: 2, QueueSize: 10})
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for range 6 {
		wg.Add(1)
		require.NoError(t, d.Dispatch(Task{Name: "t", Run: func(context.Context) error {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil
		}}))
	}
	wg.Wait()
	closeDispatcher(t, d)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatchQueueFull(t *testing.T) {
	rec := &statsd.Recorder{}
	d := New(Options{Workers: 1, QueueSize: 1, Metrics: rec})
	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, d.Dispatch(Task{Name: "busy", Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}}))
	<-started
	require.NoError(t, d.Dispatch(Task{Name: "queued", Run: func(context.Context) error { return nil }}))

	err := d.Dispatch(Task{Name: "overflow", Run: func(context.Context) error { return nil }})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.EqualValues(t, 1, rec.CountOf("dispatcher.rejected", map[string]string{"reason": "queue_full"}))

	close(block)
	closeDispatcher(t, d)
}

func TestPanicAndErrorReachFailureHook(t *testing.T) {
	d := New(Options{Workers: 1})
	failures := make(chan error, 2)
	hook := func(_ context.Context, err error) { failures <- err }

	require.NoError(t, d.Dispatch(Task{Name: "panics", Run: func(context.Context) error {
		panic("nil document")
	}, OnFailure: hook}))
	boom := errors.New("boom")
	require.NoError(t, d.Dispatch(Task{Name: "errors", Run: func(context.Context) error {
		return boom
	}, OnFailure: hook}))

	first := <-failures
	var pe *PanicError
	require.ErrorAs(t, first, &pe)
	assert.Equal(t, "panics", pe.Task)
	assert.Equal(t, "nil document", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	assert.ErrorIs(t, <-failures, boom)
	closeDispatcher(t, d)
}

func TestPanickingHookDoesNotKillWorker(t *testing.T) {
	d := New(Options{Workers: 1})
	require.NoError(t, d.Dispatch(Task{
		Name:      "bad-hook",
		Run:       func(context.Context) error { return errors.New("x") },
		OnFailure: func(context.Context, error) { panic("hook") },
	}))

	done := make(chan struct{})
	require.NoError(t, d.Dispatch(Task{Name: "after", Run: func(context.Context) error {
		close(done)
		return nil
	}}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking hook")
	}
	closeDispatcher(t, d)
}

func TestPanicErrorUnwrap(t *testing.T) {
	cause := errors.New("inner")
	assert.ErrorIs(t, &PanicError{Task: "t", Value: cause}, cause)
	assert.NoError(t, (&PanicError{Task: "t", Value: 42}).Unwrap())
}

func TestCloseDrainsQueueAndRejectsNewWork(t *testing.T) {
	d := New(Options{Workers: 1, QueueSize: 8})
	var ran atomic.Int32
	for range 5 {
		require.NoError(t, d.Dispatch(Task{Name: "t", Run: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil
		}}))
	}
	closeDispatcher(t, d)
	assert.EqualValues(t, 5, ran.Load())

	require.ErrorIs(t, d.Dispatch(Task{Name: "late", Run: func(context.Context) error { return nil }}), ErrClosed)
	closeDispatcher(t, d)
}

func TestCloseTimesOut(t *testing.T) {
	d := New(Options{Workers: 1})
	block := make(chan struct{})
	defer close(block)
	require.NoError(t, d.Dispatch(Task{Name: "stuck", Run: func(context.Context) error {
		<-block
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunDrainsOnCancel(t *testing.T) {
	d := New(Options{Workers: 1})
	var ran atomic.Bool
	require.NoError(t, d.Dispatch(Task{Name: "t", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx, time.Second))
	assert.True(t, ran.Load())
}

func TestDispatchRequiresRun(t *testing.T) {
	d := New(Options{})
	require.Error(t, d.Dispatch(Task{Name: "empty"}))
	closeDispatcher(t, d)
}

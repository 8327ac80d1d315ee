package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/observability/notify"
)

type capture struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
}

func (c *capture) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.payloads = append(c.payloads, p)
		return nil
	})
}

func TestServiceNotifyJobFailure(t *testing.T) {
	first, second := &capture{}, &capture{}
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "a", Sink: first.sink()},
		{Name: "b", Sink: second.sink()},
		{Name: "nil"},
	}})
	require.True(t, svc.Enabled())

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:  "123",
		Status: string(model.JobRunStatusDeadLetter),
	})

	require.Len(t, first.payloads, 1)
	require.Len(t, second.payloads, 1)
	assert.Equal(t, notify.SeverityCritical, first.payloads[0].Severity)
}

func TestServiceFiltersStatuses(t *testing.T) {
	c := &capture{}
	svc := NewService(Options{
		Sinks:    []SinkRegistration{{Name: "c", Sink: c.sink()}},
		Statuses: []model.JobRunStatus{model.JobRunStatusDeadLetter},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1", Status: "FAILED"})
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "2", Status: "DEAD_LETTER"})

	require.Len(t, c.payloads, 1)
	assert.Equal(t, "2", c.payloads[0].JobID)
}

func TestServiceSurvivesSinkErrorsAndCanceledContext(t *testing.T) {
	var delivered bool
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			return errors.New("boom")
		})},
		{Name: "ok", Sink: notify.SinkFunc(func(ctx context.Context, _ notify.JobFailurePayload) error {
			delivered = ctx.Err() == nil
			return nil
		})},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{JobID: "123"})
	assert.True(t, delivered)
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())
	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{})
}

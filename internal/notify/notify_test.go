package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

type collector struct {
	mu     sync.Mutex
	events []models.StepEvent
	err    error
}

func (c *collector) Handle(_ context.Context, event models.StepEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func event(step int) models.StepEvent {
	return models.StepEvent{ClaimID: "c1", StepIndex: step, From: models.StepActive, To: models.StepApproved}
}

func TestDispatcher_DeliversInOrderToEverySink(t *testing.T) {
	t.Parallel()

	first := &collector{err: errors.New("sink down")}
	second := &collector{}
	d := NewDispatcher(8, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := range 5 {
		d.Publish(ctx, event(i))
	}

	require.Eventually(t, func() bool { return second.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, 5, first.count(), "a failing sink does not stop delivery")
	for i, ev := range second.events {
		require.Equal(t, i, ev.StepIndex)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	t.Parallel()

	sink := &collector{}
	d := NewDispatcher(2, sink)

	// No worker is running, so the third publish overflows.
	d.Publish(context.Background(), event(0))
	d.Publish(context.Background(), event(1))
	d.Publish(context.Background(), event(2))
	require.Equal(t, int64(1), d.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)
	require.Equal(t, 2, sink.count(), "buffered events are flushed on shutdown")
}

func TestDispatcher_Register(t *testing.T) {
	t.Parallel()

	first, late := &collector{}, &collector{}
	d := NewDispatcher(4, first)
	d.Register(late)

	d.Publish(context.Background(), event(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)
	require.Equal(t, 1, first.count())
	require.Equal(t, 1, late.count())
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()

	var got models.StepEvent
	sink := SinkFunc(func(_ context.Context, ev models.StepEvent) error {
		got = ev
		return nil
	})
	require.NoError(t, sink.Handle(context.Background(), event(3)))
	require.Equal(t, 3, got.StepIndex)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(&bytes.Buffer{}) })

	ev := event(1)
	ev.Trigger = &models.Vote{VoterID: "mgr", Decision: models.DecisionApprove}
	require.NoError(t, LogSink{}.Handle(context.Background(), ev))

	out := buf.String()
	require.Contains(t, out, "Step transition")
	require.Contains(t, out, `"claim_id":"c1"`)
	require.Contains(t, out, "voter_hash")
	require.NotContains(t, out, `"mgr"`)
}

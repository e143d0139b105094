package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleep_ResolvesAfterDeadline(t *testing.T) {
	timer := NewTimerThread()
	defer timer.Stop()

	e := NewExecutor(1)
	defer e.Shutdown()

	start := time.Now()
	h := e.Spawn(context.Background(), Sleep(timer, 20*time.Millisecond))
	_, err := h.Join(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_NeverFiresBeforeDeadline(t *testing.T) {
	timer := NewTimerThread()
	defer timer.Stop()

	e := NewExecutor(1)
	defer e.Shutdown()

	h := e.Spawn(context.Background(), Sleep(timer, 50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Join(ctx)
	assert.Error(t, err, "sleep future must not resolve before its deadline")
}

func TestTimerThread_OrdersMultipleDeadlines(t *testing.T) {
	timer := NewTimerThread()
	defer timer.Stop()

	e := NewExecutor(2)
	defer e.Shutdown()

	hLate := e.Spawn(context.Background(), Sleep(timer, 40*time.Millisecond))
	hEarly := e.Spawn(context.Background(), Sleep(timer, 5*time.Millisecond))

	_, err := hEarly.Join(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = hLate.Join(ctx)
	assert.Error(t, err, "later deadline must not have fired yet")
}

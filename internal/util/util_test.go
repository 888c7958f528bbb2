package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcd...", TruncateString("abcdefghij", 7))
	assert.Equal(t, "📊📊📊", TruncateString("📊📊📊📊", 3))
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold([]string{"Admin", "Campaign Lead"}, " campaign lead"))
	assert.False(t, ContainsFold([]string{"Admin"}, "moderator"))
	assert.False(t, ContainsFold(nil, "admin"))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, Chunk([]int{1}, 0))
	assert.Nil(t, Chunk([]int{}, 3))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "3h 25m", FormatUptime(3*time.Hour+25*time.Minute+40*time.Second))
	assert.Equal(t, "0h 0m", FormatUptime(0))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, time.Minute, 0, nil, nil)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func() error { return boom }

	assert.ErrorIs(t, cb.Call(fail, nil, nil), boom)
	assert.Equal(t, CircuitStateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Call(fail, nil, nil), boom)
	assert.Equal(t, CircuitStateOpen, cb.GetState())

	calls := 0
	err := cb.Call(func() error { calls++; return nil }, nil, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitStateHalfOpen, cb.GetState())
	require.NoError(t, cb.Call(func() error { calls++; return nil }, nil, nil))
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitStateClosed, cb.GetState())
}

func TestCircuitBreakerCustomTimeoutAndIgnoredErrors(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Minute, 0, nil, nil)
	cb.now = func() time.Time { return now }

	ignored := errors.New("bad input")
	_ = cb.Call(func() error { return ignored }, func(error) bool { return false }, nil)
	assert.Equal(t, CircuitStateClosed, cb.GetState())

	limited := errors.New("429")
	_ = cb.Call(func() error { return limited }, nil, func(error) time.Duration { return 5 * time.Minute })
	assert.Equal(t, CircuitStateOpen, cb.GetState())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitStateOpen, cb.GetState(), "custom timeout outlasts the default")
	now = now.Add(4 * time.Minute)
	assert.Equal(t, CircuitStateHalfOpen, cb.GetState())
}

package history

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedChannel serves messages with ids total..1, newest first.
type pagedChannel struct {
	total   int
	failAt  int // fail on this call number (1-based); 0 never fails
	calls   int
	befores []string
	limits  []int
}

func (p *pagedChannel) FetchMessagesPage(_ context.Context, _ string, limit int, before string) ([]domain.Message, error) {
	p.calls++
	p.befores = append(p.befores, before)
	p.limits = append(p.limits, limit)
	if p.failAt > 0 && p.calls == p.failAt {
		return nil, errors.New("rate limited")
	}

	start := p.total
	if before != "" {
		n, _ := strconv.Atoi(before)
		start = n - 1
	}
	var out []domain.Message
	for id := start; id >= 1 && len(out) < limit; id-- {
		out = append(out, domain.Message{ID: strconv.Itoa(id)})
	}
	return out, nil
}

func TestFetchAllPagesNewestToOldest(t *testing.T) {
	ch := &pagedChannel{total: 250}
	f := NewFetcher(ch, 0, nil)

	got, err := f.FetchAll(context.Background(), "c", 1000)
	require.NoError(t, err)
	require.Len(t, got, 250)
	assert.Equal(t, "250", got[0].ID)
	assert.Equal(t, "1", got[249].ID)
	assert.Equal(t, []string{"", "151", "51", "1"}, ch.befores)
}

func TestFetchAllRespectsCap(t *testing.T) {
	ch := &pagedChannel{total: 500}
	f := NewFetcher(ch, 0, nil)

	got, err := f.FetchAll(context.Background(), "c", 150)
	require.NoError(t, err)
	assert.Len(t, got, 150)
	assert.Equal(t, []int{100, 50}, ch.limits)
}

func TestFetchAllReturnsPartialOnError(t *testing.T) {
	ch := &pagedChannel{total: 500, failAt: 3}
	f := NewFetcher(ch, 0, nil)

	got, err := f.FetchAll(context.Background(), "c", 1000)
	require.Error(t, err)
	assert.Len(t, got, 200)
}

func TestWalkStopsWhenVisitorDeclines(t *testing.T) {
	ch := &pagedChannel{total: 500}
	f := NewFetcher(ch, 0, nil)

	seen := 0
	n, err := f.Walk(context.Background(), "c", 1000, func(domain.Message) bool {
		seen++
		return seen < 42
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, 1, ch.calls)
}

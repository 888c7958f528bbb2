package enrichment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		Token:          "secret",
		TaskID:         "task123",
		Timeout:        time.Minute,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, nil)
}

func TestClientRunDecodesRecords(t *testing.T) {
	var gotInput taskInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/actor-tasks/task123/run-sync-get-dataset-items", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotInput))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"inputUrl":"https://www.instagram.com/reel/A/","id":"1","shortCode":"A","ownerUsername":"alice","videoPlayCount":1500,"likesCount":10},
			{"url":"https://www.instagram.com/reel/B/","error":"not_found","errorDescription":"Post does not exist"}
		]`))
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).Run(context.Background(), []string{
		"https://www.instagram.com/reel/A/",
		"https://www.instagram.com/reel/B/",
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"https://www.instagram.com/reel/A/", "https://www.instagram.com/reel/B/"}, gotInput.DirectURLs)
	assert.Equal(t, "posts", gotInput.ResultsType)
	assert.Equal(t, 1, gotInput.ResultsLimit)

	assert.True(t, records[0].IsValid())
	assert.Equal(t, int64(1500), records[0].Views())
	assert.Nil(t, records[0].CommentsCount)

	assert.True(t, records[1].HasError())
	assert.Equal(t, "https://www.instagram.com/reel/B/", records[1].InputURL)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).Run(context.Background(), []string{"u"})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Run(context.Background(), []string{"u"})
	require.Error(t, err)

	var apiErr *errors.APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientOpensCircuitAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := c.Run(context.Background(), []string{"u"})
		require.Error(t, err)
	}
	before := calls.Load()

	_, err := c.Run(context.Background(), []string{"u"})
	require.Error(t, err)
	assert.Equal(t, before, calls.Load(), "open circuit short-circuits the call")
}

func TestClientRequiresToken(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://unused"}, nil)
	_, err := c.Run(context.Background(), []string{"u"})
	require.Error(t, err)
}

type scriptedEnricher struct {
	calls [][]string
	fail  map[int]bool
}

func (s *scriptedEnricher) Run(_ context.Context, urls []string) ([]domain.EnrichmentRecord, error) {
	s.calls = append(s.calls, urls)
	if s.fail[len(s.calls)] {
		return nil, stderrors.New("boom")
	}
	out := make([]domain.EnrichmentRecord, len(urls))
	for i, u := range urls {
		out[i] = domain.EnrichmentRecord{InputURL: u, OwnerUsername: "o", VideoPlayCount: domain.Int64(1)}
	}
	return out, nil
}

func TestBatchRunnerChunksAndSurvivesFailures(t *testing.T) {
	inner := &scriptedEnricher{fail: map[int]bool{2: true}}
	var progress []int
	runner := NewBatchRunner(inner, 2, 0, nil).WithProgress(func(done, _ int) {
		progress = append(progress, done)
	})

	records, err := runner.Run(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, inner.calls)
	assert.Equal(t, []int{1, 2, 3}, progress)

	assert.True(t, records[0].IsValid())
	assert.Equal(t, ChunkErrorCode, records[2].Error)
	assert.Equal(t, "d", records[3].InputURL)
	assert.True(t, records[4].IsValid())
}

func TestBatchRunnerStopsOnCancel(t *testing.T) {
	inner := &scriptedEnricher{}
	runner := NewBatchRunner(inner, 1, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	records, err := runner.Run(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, records, 1)
}

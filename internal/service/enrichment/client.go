// Package enrichment talks to the Apify task that scrapes Instagram post metadata.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

// Enricher turns post URLs into enrichment records.
type Enricher interface {
	Run(ctx context.Context, urls []string) ([]domain.EnrichmentRecord, error)
}

type ClientConfig struct {
	BaseURL     string
	Token       string
	TaskID      string
	Timeout     time.Duration
	MaxAttempts uint64
	// InitialBackoff overrides the first retry delay. Zero keeps the library default.
	InitialBackoff time.Duration
}

// Client runs the configured actor task synchronously and reads its dataset.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	breaker    *util.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	logger = util.OrNop(logger)
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.EnrichmentConfig.Timeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = constants.EnrichmentConfig.MaxAttempts
	}
	cb := constants.CircuitBreakerConfig
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// the run-sync endpoint holds the connection until the task finishes
			Timeout: cfg.Timeout + 30*time.Second,
		},
		breaker: util.NewCircuitBreaker("apify", cb.FailureThreshold, cb.ResetTimeout, cb.HealthCheckInterval, nil, logger),
		logger:  logger,
	}
}

// taskInput overrides the saved task input for one run.
type taskInput struct {
	AddParentData                     bool     `json:"addParentData"`
	DirectURLs                        []string `json:"directUrls"`
	EnhanceUserSearchWithFacebookPage bool     `json:"enhanceUserSearchWithFacebookPage"`
	IsUserReelFeedURL                 bool     `json:"isUserReelFeedURL"`
	IsUserTaggedFeedURL               bool     `json:"isUserTaggedFeedURL"`
	ResultsLimit                      int      `json:"resultsLimit"`
	ResultsType                       string   `json:"resultsType"`
	SearchLimit                       int      `json:"searchLimit"`
}

func newTaskInput(urls []string) taskInput {
	return taskInput{
		DirectURLs:        urls,
		IsUserReelFeedURL: true,
		ResultsLimit:      1,
		ResultsType:       "posts",
		SearchLimit:       1,
	}
}

// wireRecord accepts error items that report the submitted URL as "url".
type wireRecord struct {
	domain.EnrichmentRecord
	URL string `json:"url"`
}

// Run submits urls as one task run. There is no idempotency key: a retried
// attempt re-submits the whole batch.
func (c *Client) Run(ctx context.Context, urls []string) ([]domain.EnrichmentRecord, error) {
	if len(urls) == 0 {
		return []domain.EnrichmentRecord{}, nil
	}
	if c.cfg.Token == "" {
		return nil, errors.NewServiceError("scraping service token not configured", "apify", "run", nil)
	}

	body, err := json.Marshal(newTaskInput(urls))
	if err != nil {
		return nil, errors.NewServiceError("failed to encode task input", "apify", "run", err)
	}

	start := time.Now()
	var records []domain.EnrichmentRecord

	err = c.breaker.Call(func() error {
		var callErr error
		records, callErr = c.runWithRetry(ctx, body, len(urls))
		return callErr
	}, isBreakerFailure, breakerTimeout)

	observability.EnrichmentDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.EnrichmentRequests.WithLabelValues("error").Inc()
		if stderrors.Is(err, util.ErrCircuitOpen) {
			return nil, errors.NewServiceError("scraping service temporarily disabled", "apify", "run", err)
		}
		return nil, err
	}

	observability.EnrichmentRequests.WithLabelValues("ok").Inc()
	c.logger.Info("Enrichment run finished",
		zap.Int("urls", len(urls)),
		zap.Int("records", len(records)),
		zap.Duration("duration", time.Since(start)),
	)
	return records, nil
}

func (c *Client) runWithRetry(ctx context.Context, body []byte, urlCount int) ([]domain.EnrichmentRecord, error) {
	policy := backoff.NewExponentialBackOff()
	if c.cfg.InitialBackoff > 0 {
		policy.InitialInterval = c.cfg.InitialBackoff
	}
	policy.MaxElapsedTime = 0

	var records []domain.EnrichmentRecord
	attempt := 0
	op := func() error {
		attempt++
		var err error
		records, err = c.doRun(ctx, body)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		c.logger.Warn("Enrichment attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("urls", urlCount),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxAttempts-1), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(c.cfg.Timeout.Seconds())))
	q.Set("format", "json")
	return fmt.Sprintf("%s/v2/actor-tasks/%s/run-sync-get-dataset-items?%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.TaskID), q.Encode())
}

func (c *Client) doRun(ctx context.Context, body []byte) ([]domain.EnrichmentRecord, error) {
	endpoint := c.endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewAPIError("failed to create request", 500, map[string]any{
			"task": c.cfg.TaskID,
		}).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewAPIError("request failed", 503, map[string]any{
			"task": c.cfg.TaskID,
		}).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewAPIError(
			fmt.Sprintf("Apify API error: %s", resp.Status),
			resp.StatusCode,
			map[string]any{
				"task": c.cfg.TaskID,
				"body": string(bodyBytes),
			},
		)
	}

	var wire []wireRecord
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, errors.NewAPIError("failed to decode dataset items", 502, map[string]any{
			"task": c.cfg.TaskID,
		}).WithCause(err)
	}

	records := make([]domain.EnrichmentRecord, len(wire))
	for i, w := range wire {
		r := w.EnrichmentRecord
		if r.InputURL == "" {
			r.InputURL = w.URL
		}
		records[i] = r
	}
	return records, nil
}

// isRetryable treats network failures, 5xx and 429 as transient.
func isRetryable(err error) bool {
	var apiErr *errors.APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

func isBreakerFailure(err error) bool {
	return isRetryable(err)
}

func breakerTimeout(err error) time.Duration {
	if errors.IsRateLimited(err) {
		return constants.CircuitBreakerConfig.RateLimitTimeout
	}
	return 0
}

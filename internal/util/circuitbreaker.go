package util

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned by Call while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "CLOSED"
	CircuitStateOpen     CircuitState = "OPEN"
	CircuitStateHalfOpen CircuitState = "HALF_OPEN"
)

func (s CircuitState) String() string {
	return string(s)
}

// HealthCheckFunction is a function that checks if the service is healthy
type HealthCheckFunction func() bool

// TimeoutFunc picks a custom open timeout for a failure; zero keeps the default.
type TimeoutFunc func(err error) time.Duration

// CircuitBreaker guards calls to a flaky external service.
type CircuitBreaker struct {
	name                string
	state               CircuitState
	failureCount        int
	failureThreshold    int
	resetTimeout        time.Duration
	nextRetryTime       time.Time
	nextHealthCheckTime time.Time
	healthCheckInterval time.Duration
	isHealthChecking    bool
	healthCheckFn       HealthCheckFunction
	logger              *zap.Logger
	now                 func() time.Time
	mu                  sync.Mutex
}

func NewCircuitBreaker(
	name string,
	failureThreshold int,
	resetTimeout time.Duration,
	healthCheckInterval time.Duration,
	healthCheckFn HealthCheckFunction,
	logger *zap.Logger,
) *CircuitBreaker {
	return &CircuitBreaker{
		name:                name,
		state:               CircuitStateClosed,
		failureThreshold:    failureThreshold,
		resetTimeout:        resetTimeout,
		healthCheckInterval: healthCheckInterval,
		healthCheckFn:       healthCheckFn,
		logger:              OrNop(logger).With(zap.String("breaker", name)),
		now:                 time.Now,
	}
}

// GetState returns the current circuit state, moving OPEN to HALF_OPEN once the
// retry time has passed (or the health check succeeds).
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitStateOpen {
		now := cb.now()
		if cb.healthCheckFn != nil && now.After(cb.nextHealthCheckTime) && !cb.isHealthChecking {
			go cb.tryHealthCheck()
		} else if cb.healthCheckFn == nil && now.After(cb.nextRetryTime) {
			cb.transitionTo(CircuitStateHalfOpen)
		}
	}

	return cb.state
}

func (cb *CircuitBreaker) CanExecute() bool {
	return cb.GetState() != CircuitStateOpen
}

// Call runs fn if the breaker allows it and records the outcome.
// Errors for which isFailure returns false are passed through without counting.
func (cb *CircuitBreaker) Call(fn func() error, isFailure func(error) bool, timeout TimeoutFunc) error {
	if !cb.CanExecute() {
		return ErrCircuitOpen
	}

	err := fn()
	if err == nil {
		cb.RecordSuccess()
		return nil
	}

	if isFailure == nil || isFailure(err) {
		var custom time.Duration
		if timeout != nil {
			custom = timeout(err)
		}
		cb.RecordFailure(custom)
	}
	return err
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitStateHalfOpen {
		cb.logger.Info("Circuit Breaker: Service recovered, transitioning to CLOSED")
		cb.transitionTo(CircuitStateClosed)
		cb.failureCount = 0
	} else if cb.state == CircuitStateClosed && cb.failureCount > 0 {
		cb.logger.Debug("Circuit Breaker: Resetting failure count",
			zap.Int("was", cb.failureCount),
		)
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) RecordFailure(customTimeout time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	timeout := cb.resetTimeout
	if customTimeout > 0 {
		timeout = customTimeout
	}

	cb.logger.Warn("Circuit Breaker: Failure recorded",
		zap.Int("count", cb.failureCount),
		zap.Int("threshold", cb.failureThreshold),
		zap.Duration("timeout", timeout),
	)

	if cb.state == CircuitStateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.logger.Error("Circuit Breaker: OPENING circuit",
			zap.String("from", cb.state.String()),
			zap.Int("threshold", cb.failureThreshold),
		)
		cb.nextRetryTime = cb.now().Add(timeout)
		cb.transitionTo(CircuitStateOpen)

		if cb.healthCheckFn != nil {
			cb.nextHealthCheckTime = cb.now().Add(cb.healthCheckInterval)
		}
	}
}

func (cb *CircuitBreaker) tryHealthCheck() {
	cb.mu.Lock()
	if cb.healthCheckFn == nil || cb.isHealthChecking {
		cb.mu.Unlock()
		return
	}
	cb.isHealthChecking = true
	cb.mu.Unlock()

	isHealthy := cb.healthCheckFn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.isHealthChecking = false

	if isHealthy {
		cb.logger.Info("Circuit Breaker: Health check passed, transitioning to HALF_OPEN")
		cb.transitionTo(CircuitStateHalfOpen)
	} else {
		cb.logger.Warn("Circuit Breaker: Health check failed, delaying next check")
		cb.nextHealthCheckTime = cb.now().Add(cb.healthCheckInterval)
	}
}

// must be called with lock held
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	nextRetry := "n/a"
	if newState == CircuitStateOpen {
		nextRetry = cb.nextRetryTime.Format(time.RFC3339)
	}

	cb.logger.Info("Circuit Breaker: State transition",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
		zap.Int("failure_count", cb.failureCount),
		zap.String("next_retry", nextRetry),
	)
}

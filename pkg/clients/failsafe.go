package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"ncbot/pkg/logging"
)

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker in logs and metrics
	Name string

	// FailureThreshold failures out of FailureExecutions recent calls trip the breaker.
	FailureThreshold  uint
	FailureExecutions uint

	// Delay is how long the circuit stays open before probing again.
	Delay time.Duration

	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold uint

	// Logger for state change notifications
	Logger logging.Logger

	// OnStateChange is an optional callback invoked when the circuit breaker
	// changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		FailureExecutions: 10,
		Delay:             15 * time.Second,
		SuccessThreshold:  1,
	}
}

// NewHTTPCircuitBreaker builds a breaker that counts transport errors and
// 5xx/429 responses as failures.
//
//nolint:bodyclose // false positive: [*http.Response] is a generic type parameter, not an actual response
func NewHTTPCircuitBreaker(cfg CircuitBreakerConfig) circuitbreaker.CircuitBreaker[*http.Response] {
	if cfg.Name == "" {
		cfg.Name = "circuit-breaker"
	}
	if cfg.FailureExecutions == 0 {
		cfg.FailureExecutions = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.FailureExecutions {
		cfg.FailureThreshold = cfg.FailureExecutions / 2
		if cfg.FailureThreshold < 1 {
			cfg.FailureThreshold = 1
		}
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 15 * time.Second
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}

	builder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.FailureExecutions).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.SuccessThreshold).
		HandleIf(IsFailureResponse)

	if cfg.OnStateChange != nil || cfg.Logger != nil {
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			fromState := convertState(event.OldState)
			toState := convertState(event.NewState)

			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"circuit_breaker": cfg.Name,
					"from_state":      fromState.String(),
					"to_state":        toState.String(),
				}).Warn("circuit breaker state change")
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(cfg.Name, fromState, toState)
			}
		})
	}

	return builder.Build()
}

// convertState converts failsafe-go state to our state type
func convertState(state circuitbreaker.State) CircuitBreakerState {
	switch state {
	case circuitbreaker.ClosedState:
		return StateClosed
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// IsFailureResponse reports whether a call outcome should count against the breaker.
func IsFailureResponse(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// HTTPExecutorConfig configures the HTTP executor. Calls are never retried:
// a failed upstream write must not be repeated within a run.
type HTTPExecutorConfig struct {
	// CircuitBreaker is optional
	CircuitBreaker *CircuitBreakerConfig
}

// DefaultHTTPExecutorConfig returns a breaker-only executor config.
func DefaultHTTPExecutorConfig(name string) HTTPExecutorConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return HTTPExecutorConfig{CircuitBreaker: &cb}
}

// NewHTTPExecutor creates a failsafe executor for HTTP requests. Returns nil
// when no circuit breaker is configured; ExecuteHTTP treats a nil executor
// as a direct call.
//
//nolint:bodyclose // false positive: [*http.Response] is a generic type parameter, not an actual response
func NewHTTPExecutor(cfg HTTPExecutorConfig) failsafe.Executor[*http.Response] {
	if cfg.CircuitBreaker == nil {
		return nil
	}
	return failsafe.With[*http.Response](NewHTTPCircuitBreaker(*cfg.CircuitBreaker))
}

// ExecuteHTTP runs an HTTP request through the executor
func ExecuteHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], fn func() (*http.Response, error)) (*http.Response, error) {
	if executor == nil {
		return fn()
	}
	return executor.WithContext(ctx).Get(fn)
}

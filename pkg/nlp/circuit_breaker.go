package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/episodic/pkg/alert"
	"github.com/soundprediction/episodic/pkg/config"
	"github.com/soundprediction/episodic/pkg/types"
)

// CircuitBreakerClient wraps a Client with circuit breaking logic
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
	name   string
}

// NewCircuitBreakerClient creates a new circuit breaker client. The
// alerter is told whenever the breaker opens.
func NewCircuitBreakerClient(client Client, cfg config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger, name string) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.Default()
	}
	ratio := cfg.ReadyToTripRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= ratio
		},
		// A refusal or caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRefusal) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("LLM circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && alerter != nil {
				msg := fmt.Sprintf("Circuit breaker '%s' changed from %s to %s. Too many failures detected.", name, from, to)
				if err := alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg); err != nil {
					logger.Error("Failed to send circuit breaker alert", "breaker", name, "error", err)
				}
			}
		},
	}

	return &CircuitBreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
		name:   name,
	}
}

// Chat implements Client
func (c *CircuitBreakerClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.execute(func() (*types.Response, error) {
		return c.client.Chat(ctx, messages)
	})
}

// ChatWithStructuredOutput implements Client
func (c *CircuitBreakerClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.execute(func() (*types.Response, error) {
		return c.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

// Close implements Client
func (c *CircuitBreakerClient) Close() error {
	return c.client.Close()
}

// State reports the breaker state, e.g. for readiness checks.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func (c *CircuitBreakerClient) execute(call func() (*types.Response, error)) (*types.Response, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrCircuitOpen, c.name, err)
		}
		return nil, err
	}
	return resp.(*types.Response), nil
}

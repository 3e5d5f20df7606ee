package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lavraseats/lavraseats/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// GenerationConfig mirrors the sampling knobs the pipeline cares about.
// Nil Temperature/TopP and zero TopK/MaxOutputTokens fall back to the client
// defaults; a set Temperature of 0 is sent as 0.
type GenerationConfig struct {
	Temperature     *float64
	TopP            *float64
	TopK            int
	MaxOutputTokens int
}

// Float returns a pointer to v, for the optional GenerationConfig fields.
func Float(v float64) *float64 {
	return &v
}

func (g GenerationConfig) merge(defaults GenerationConfig) GenerationConfig {
	if g.Temperature == nil {
		g.Temperature = defaults.Temperature
	}
	if g.TopP == nil {
		g.TopP = defaults.TopP
	}
	if g.TopK == 0 {
		g.TopK = defaults.TopK
	}
	if g.MaxOutputTokens == 0 {
		g.MaxOutputTokens = defaults.MaxOutputTokens
	}
	return g
}

func (g GenerationConfig) callOptions() []llms.CallOption {
	var options []llms.CallOption
	if g.Temperature != nil {
		options = append(options, llms.WithTemperature(*g.Temperature))
	}
	if g.TopP != nil {
		options = append(options, llms.WithTopP(*g.TopP))
	}
	if g.TopK > 0 {
		options = append(options, llms.WithTopK(g.TopK))
	}
	if g.MaxOutputTokens > 0 {
		options = append(options, llms.WithMaxTokens(g.MaxOutputTokens))
	}
	return options
}

// Invoker sends one prompt and returns the raw reply text.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, gen GenerationConfig) (string, error)
}

// Client is built once at start-up and shared by every request. Its fields
// are never mutated after construction.
type Client struct {
	model       llms.Model
	name        string
	defaults    GenerationConfig
	timeout     time.Duration
	maxAttempts int
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[string]
}

type Option func(*Client)

func WithDefaults(gen GenerationConfig) Option {
	return func(c *Client) { c.defaults = gen }
}

// WithTimeout bounds each attempt, including the wait for the rate limiter.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewClient(model llms.Model, name string, opts ...Option) *Client {
	c := &Client{
		model:       model,
		name:        name,
		timeout:     30 * time.Second,
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}

	breakerName := "llm-" + name
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("model circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return c
}

func (c *Client) Name() string {
	return c.name
}

// Invoke makes up to maxAttempts round-trips. It stops early when the
// caller's context is done or the breaker refuses the call.
func (c *Client) Invoke(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	options := gen.merge(c.defaults).callOptions()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		reply, err := c.invokeOnce(ctx, prompt, options)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil || isRejected(err) {
			break
		}
		if attempt < c.maxAttempts {
			slog.Warn("model call failed, retrying", "model", c.name, "attempt", attempt, "error", err)
		}
	}

	return "", fmt.Errorf("invoke %s: %w", c.name, lastErr)
}

func (c *Client) invokeOnce(ctx context.Context, prompt string, options []llms.CallOption) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			metrics.RecordModelCall(c.name, "rejected", 0)
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	reply, err := c.breaker.Execute(func() (string, error) {
		return llms.GenerateFromSinglePrompt(callCtx, c.model, prompt, options...)
	})
	switch {
	case isRejected(err):
		metrics.RecordModelCall(c.name, "rejected", 0)
	case err != nil:
		metrics.RecordModelCall(c.name, "error", time.Since(start))
	default:
		metrics.RecordModelCall(c.name, "ok", time.Since(start))
	}

	return reply, err
}

func isRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

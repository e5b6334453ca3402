// Package rest is the shared JSON-over-HTTP client of the venue adapters:
// per-venue rate limiting, a circuit breaker and optional retries.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned without a network call while the breaker is open.
var ErrCircuitOpen = errors.New("rest: circuit open")

const (
	defaultTimeout   = 5 * time.Second
	defaultRate      = 10
	defaultBurst     = 5
	defaultFailures  = 5
	defaultCooldown  = 30 * time.Second
	baseRetryWait    = 250 * time.Millisecond
	maxErrorBodySize = 512
)

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Config tunes one client. Zero values take defaults; Retries defaults to 0
// because callers fail over to the next strategy instead.
type Config struct {
	Name            string
	BaseURL         string
	RatePerSec      float64
	Burst           int
	Timeout         time.Duration
	Retries         int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client performs GET requests against a single base URL.
type Client struct {
	name    string
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retries int
	log     zerolog.Logger
}

// New creates a client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultCooldown
	}
	l := log.With().Str("component", "rest").Str("venue", cfg.Name).Logger()

	c := &Client{
		name:    cfg.Name,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		retries: max(cfg.Retries, 0),
		log:     l,
	}
	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a client error means the venue answered; only outages trip.
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && se.Code != http.StatusTooManyRequests
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// Name returns the venue name the client was configured with.
func (c *Client) Name() string { return c.name }

// GetJSON fetches base+path?query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.sleep(ctx, attempt-1)
		}
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.do(ctx, u, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("rest.GetJSON: %s: %w", c.name, ErrCircuitOpen)
		}
		if err == nil || !retryable(err) || ctx.Err() != nil {
			break
		}
		c.log.Debug().Err(err).Int("attempt", attempt+1).Str("path", path).Msg("request failed")
	}
	if err != nil {
		return fmt.Errorf("rest.GetJSON: %s %s: %w", c.name, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "updown/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// sleep waits with exponential backoff, returning early on cancellation.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

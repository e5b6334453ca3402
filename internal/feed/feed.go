// Package feed polls quote sources in the background and hands the freshest
// sample to a single consumer.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/fallback"
	"github.com/alejandrodnm/updown/internal/metrics"
	"github.com/alejandrodnm/updown/internal/ports"
)

const (
	// BufferSize is the capacity of the latest-wins buffer. Freshness matters
	// more than completeness, so it stays small.
	BufferSize = 10

	StatusInit   = "INIT"
	StatusNoData = "NO_DATA"

	maxErrorLen    = 160
	minJoinTimeout = 2 * time.Second
)

var (
	// ErrInvalidQuote is recorded when a source answers without a usable mid.
	ErrInvalidQuote = errors.New("feed: quote without positive mid")
	// ErrNoData means no sample arrived within the wait.
	ErrNoData = errors.New("feed: no data")
)

// Status is a point-in-time view of the feed's health.
type Status struct {
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
	Running   bool   `json:"running"`
}

// Feed owns the polling goroutine and its buffer.
type Feed struct {
	chain    *fallback.Chain[domain.Quote]
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	buf chan domain.Quote

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	done     chan struct{}
	state    string
	lastErr  string
	lastTime time.Time
}

// New builds a feed over sources in priority order.
func New(sources []ports.QuoteSource, interval time.Duration, log zerolog.Logger) *Feed {
	f := &Feed{
		interval: interval,
		log:      log.With().Str("component", "feed").Logger(),
		now:      time.Now,
		buf:      make(chan domain.Quote, BufferSize),
		state:    StatusInit,
	}
	steps := make([]fallback.Step[domain.Quote], 0, len(sources))
	for _, src := range sources {
		src := src
		steps = append(steps, fallback.Step[domain.Quote]{
			Name: src.Name(),
			Fn: func(ctx context.Context) (domain.Quote, error) {
				q, err := src.FetchQuote(ctx)
				if err != nil {
					return domain.Quote{}, err
				}
				if !q.Valid() {
					return domain.Quote{}, ErrInvalidQuote
				}
				q.Source = src.Name()
				return q, nil
			},
		})
	}
	f.chain = fallback.New(steps...)
	f.chain.OnError = f.recordError
	return f
}

// Start launches the polling goroutine. Calling it while running is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.loop(ctx, f.stop, f.done)
	f.log.Info().Int("sources", f.chain.Len()).Dur("interval", f.interval).Msg("feed started")
}

// Stop signals the polling goroutine and waits for it with a bounded timeout.
// A goroutine stuck in a slow call is logged and abandoned.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stop)
	done := f.done
	f.mu.Unlock()

	timeout := max(2*f.interval, minJoinTimeout)
	select {
	case <-done:
		f.log.Info().Msg("feed stopped")
	case <-time.After(timeout):
		f.log.Warn().Dur("timeout", timeout).Msg("feed goroutine did not stop in time")
	}
}

// Running reports whether the feed has been started and not stopped.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Status returns the current state and the last recorded error.
func (f *Feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{State: f.state, LastError: f.lastErr, Running: f.running}
}

// Latest drains the buffer and returns the most recent sample. When the buffer
// is empty it waits up to timeout for one; a zero timeout never blocks.
func (f *Feed) Latest(ctx context.Context, timeout time.Duration) (domain.Quote, bool) {
	var (
		q  domain.Quote
		ok bool
	)
drain:
	for {
		select {
		case v := <-f.buf:
			q, ok = v, true
		default:
			break drain
		}
	}
	if ok || timeout <= 0 {
		return q, ok
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-f.buf:
		return v, true
	case <-timer.C:
		return domain.Quote{}, false
	case <-ctx.Done():
		return domain.Quote{}, false
	}
}

func (f *Feed) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		f.poll(ctx)

		wait := f.interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// poll runs one cycle: first successful source wins, nothing is pushed on exhaustion.
func (f *Feed) poll(ctx context.Context) {
	q, name, err := f.chain.Run(ctx)
	if err != nil {
		metrics.FeedNoData.Inc()
		f.mu.Lock()
		f.state = StatusNoData
		f.mu.Unlock()
		f.log.Debug().Err(err).Msg("no source produced a quote")
		return
	}
	metrics.FeedPolls.WithLabelValues(name, "ok").Inc()

	f.mu.Lock()
	ts := f.now().UTC()
	if ts.Before(f.lastTime) {
		ts = f.lastTime
	}
	f.lastTime = ts
	f.state = name + " OK"
	f.lastErr = ""
	f.mu.Unlock()

	q.Time = ts
	f.push(q)
}

// push is latest-wins: on a full buffer the oldest sample is dropped.
func (f *Feed) push(q domain.Quote) {
	select {
	case f.buf <- q:
		return
	default:
	}
	select {
	case <-f.buf:
		metrics.FeedBufferDrops.Inc()
	default:
	}
	select {
	case f.buf <- q:
	default:
	}
}

func (f *Feed) recordError(source string, err error) {
	metrics.FeedPolls.WithLabelValues(source, "error").Inc()
	msg := fmt.Sprintf("%s: %v", source, err)
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	f.mu.Lock()
	f.lastErr = msg
	f.mu.Unlock()
	f.log.Debug().Str("source", source).Err(err).Msg("quote source failed")
}

package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

type stubSource struct {
	name  string
	quote domain.Quote
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchQuote(context.Context) (domain.Quote, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	return s.quote, nil
}

func bookQuote(mid float64) domain.Quote {
	q := domain.NewBookQuote(mid-0.5, mid+0.5, 2, 1)
	q.Venue = domain.VenueBinance
	return q
}

func TestLatest_EmptyNonBlocking(t *testing.T) {
	f := New(nil, time.Second, zerolog.Nop())

	start := time.Now()
	_, ok := f.Latest(context.Background(), 0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLatest_TimesOut(t *testing.T) {
	f := New(nil, time.Second, zerolog.Nop())

	start := time.Now()
	_, ok := f.Latest(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestPush_LatestWins(t *testing.T) {
	f := New(nil, time.Second, zerolog.Nop())
	for i := 1; i <= BufferSize+5; i++ {
		f.push(bookQuote(float64(100 + i)))
	}

	q, ok := f.Latest(context.Background(), 0)
	require.True(t, ok)
	assert.InDelta(t, float64(100+BufferSize+5), q.Mid, 1e-9)

	_, ok = f.Latest(context.Background(), 0)
	assert.False(t, ok, "buffer should be drained")
}

func TestPoll_FailsOverInPriorityOrder(t *testing.T) {
	primary := &stubSource{name: "binance/book", err: errors.New("timeout")}
	secondary := &stubSource{name: "binance/last", quote: domain.Quote{Mid: 101, Venue: domain.VenueBinance}}
	tertiary := &stubSource{name: "coinbase/book", quote: bookQuote(99)}

	f := New([]ports.QuoteSource{primary, secondary, tertiary}, time.Second, zerolog.Nop())
	f.poll(context.Background())

	q, ok := f.Latest(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, "binance/last", q.Source)
	assert.InDelta(t, 101.0, q.Mid, 1e-9)
	assert.False(t, q.Time.IsZero())
	assert.Equal(t, int32(0), tertiary.calls.Load())
	assert.Equal(t, "binance/last OK", f.Status().State)
	assert.Empty(t, f.Status().LastError)
}

func TestPoll_ExhaustionPublishesNothing(t *testing.T) {
	a := &stubSource{name: "a", err: errors.New("connection refused")}
	b := &stubSource{name: "b", quote: domain.Quote{Mid: 0}}

	f := New([]ports.QuoteSource{a, b}, time.Second, zerolog.Nop())
	f.poll(context.Background())

	_, ok := f.Latest(context.Background(), 0)
	assert.False(t, ok)
	st := f.Status()
	assert.Equal(t, StatusNoData, st.State)
	assert.Contains(t, st.LastError, "b")
}

func TestPoll_TimestampsMonotonic(t *testing.T) {
	src := &stubSource{name: "a", quote: bookQuote(100)}
	f := New([]ports.QuoteSource{src}, time.Second, zerolog.Nop())

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return base }
	f.poll(context.Background())
	first, _ := f.Latest(context.Background(), 0)

	f.now = func() time.Time { return base.Add(-time.Second) }
	f.poll(context.Background())
	second, _ := f.Latest(context.Background(), 0)

	assert.False(t, second.Time.Before(first.Time))
}

func TestStartStop(t *testing.T) {
	src := &stubSource{name: "a", quote: bookQuote(100)}
	f := New([]ports.QuoteSource{src}, 10*time.Millisecond, zerolog.Nop())

	f.Start(context.Background())
	f.Start(context.Background()) // no-op
	assert.True(t, f.Running())

	q, ok := f.Latest(context.Background(), time.Second)
	require.True(t, ok)
	assert.InDelta(t, 100.0, q.Mid, 1e-9)

	f.Stop()
	assert.False(t, f.Running())
	assert.False(t, f.Status().Running)
	f.Stop() // no-op
}

func TestPollingNeverStopsOnErrors(t *testing.T) {
	src := &stubSource{name: "a", err: errors.New("boom")}
	f := New([]ports.QuoteSource{src}, 5*time.Millisecond, zerolog.Nop())

	f.Start(context.Background())
	defer f.Stop()

	assert.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.Running())
}

package engine_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/internal/application/engine"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/feed"
	"github.com/alejandrodnm/updown/internal/ports"
	"github.com/alejandrodnm/updown/internal/probability"
	"github.com/alejandrodnm/updown/internal/volatility"
)

// quoteSource serves a fixed book. After limit successes it fails; zero means
// unlimited and a negative limit fails every call.
type quoteSource struct {
	bid, ask float64
	limit    int64
	calls    atomic.Int64
}

func (s *quoteSource) Name() string { return "fake/book" }

func (s *quoteSource) FetchQuote(context.Context) (domain.Quote, error) {
	n := s.calls.Add(1)
	if s.limit != 0 && n > s.limit {
		return domain.Quote{}, errors.New("connection reset")
	}
	q := domain.NewBookQuote(s.bid, s.ask, 2, 1)
	q.Venue, q.Instrument, q.Currency = domain.VenueBinance, "BTCUSDT", "USDT"
	return q, nil
}

type barsProvider struct {
	err error
}

func (b barsProvider) FetchBars(_ context.Context, _ string, from, to time.Time) ([]domain.Bar, error) {
	if b.err != nil {
		return nil, b.err
	}
	var bars []domain.Bar
	price := 100.0
	i := 0
	for t := from.Truncate(time.Minute); t.Before(to); t = t.Add(time.Minute) {
		if t.Before(from) {
			continue
		}
		open := price
		// deterministic oscillation with a slowly varying amplitude
		amp := 0.0008 * (1 + 0.5*math.Sin(float64(i)/97))
		price = open * math.Exp(amp*math.Sin(float64(i)*1.7))
		bars = append(bars, domain.Bar{
			OpenTime: t,
			Open:     open,
			High:     math.Max(open, price) * 1.0003,
			Low:      math.Min(open, price) * 0.9997,
			Close:    price,
		})
		i++
	}
	return bars, nil
}

type referenceSource struct {
	price float64
	err   error
}

func (r referenceSource) OpenPrice(context.Context, time.Time) (float64, string, error) {
	return r.price, "exact", r.err
}

type recorder struct {
	mu       sync.Mutex
	snaps    []domain.Snapshot
	outcomes []domain.Outcome
}

func (r *recorder) Report(_ context.Context, s domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recorder) Final(_ context.Context, o domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

type memJournal struct {
	snaps []domain.Snapshot
}

func (j *memJournal) Append(_ context.Context, s domain.Snapshot) error {
	j.snaps = append(j.snaps, s)
	return nil
}

func (j *memJournal) Recent(_ context.Context, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 || limit > len(j.snaps) {
		limit = len(j.snaps)
	}
	return j.snaps[len(j.snaps)-limit:], nil
}

func (j *memJournal) Summary(context.Context) (ports.JournalSummary, error) {
	var s ports.JournalSummary
	for _, snap := range j.snaps {
		s.Count++
		s.MeanPUp += snap.PUp
		if snap.Degraded {
			s.Degraded++
		}
	}
	if s.Count > 0 {
		s.MeanPUp /= float64(s.Count)
	}
	return s, nil
}

func (j *memJournal) Close() error { return nil }

func testConfig(horizon time.Duration) engine.Config {
	return engine.Config{
		Horizon:           horizon,
		PollInterval:      50 * time.Millisecond,
		FirstQuoteTimeout: time.Second,
		FetchTimeout:      time.Second,
		ReferenceTime:     time.Now().UTC(),
		GarchMinutes:      1440,
		DriftMinutes:      120,
		SmoothingSeconds:  30,
		LongTermDays:      90,
		FallbackAnnualVol: 0.9,
		DriftSpanMinutes:  15,
		OBIWeight:         0.5,
		Volatility:        volatility.DefaultConfig(),
		Probability: probability.Params{
			DF:           3,
			KappaPerSec:  probability.KappaFromHalfLife(600),
			Theta:        1e-4,
			LambdaPerSec: 1.0 / 86400,
			SigmaJump:    0.01,
		},
	}
}

func newEngine(cfg engine.Config, src ports.QuoteSource, bars ports.BarsProvider, ref ports.ReferencePriceSource, rep ports.Reporter, j ports.SnapshotJournal) *engine.Engine {
	f := feed.New([]ports.QuoteSource{src}, cfg.PollInterval, zerolog.Nop())
	venues := []ports.Venue{{Name: domain.VenueBinance, Reference: ref}}
	return engine.New(cfg, f, bars, venues, rep, j, zerolog.Nop())
}

func TestRun_StreamsUntilHorizon(t *testing.T) {
	rep := &recorder{}
	journal := &memJournal{}
	e := newEngine(testConfig(1500*time.Millisecond), &quoteSource{bid: 100.99, ask: 101.01}, barsProvider{}, referenceSource{price: 100}, rep, journal)

	out, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionUp, out.Direction)
	assert.InDelta(t, 100.0, out.ReferencePrice, 0)
	assert.Greater(t, out.FinalPrice, 100.0)
	assert.Equal(t, domain.VenueBinance, out.Venue)
	assert.Equal(t, "BTCUSDT", out.Instrument)

	rep.mu.Lock()
	defer rep.mu.Unlock()
	require.NotEmpty(t, rep.snaps)
	require.Len(t, rep.outcomes, 1)
	assert.Equal(t, len(journal.snaps), out.Snapshots)
	assert.Equal(t, len(rep.snaps), out.Snapshots)

	prev := math.Inf(1)
	for _, s := range rep.snaps {
		assert.Greater(t, s.PUp, 0.5)
		assert.InDelta(t, 1, s.PUp+s.PDown, 1e-12)
		assert.LessOrEqual(t, s.RemainingSeconds, prev)
		prev = s.RemainingSeconds
		assert.InDelta(t, 2.0/3, s.ImbalanceLive, 1e-12)
		assert.Greater(t, s.Variance.Total, 0.0)
		assert.Equal(t, s.Variance.SigmaStar+s.Variance.Microstructure, s.Variance.Measurement)
	}

	latest, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, rep.snaps[len(rep.snaps)-1], latest)
}

func TestRun_NoInitialQuote(t *testing.T) {
	cfg := testConfig(time.Second)
	cfg.FirstQuoteTimeout = 200 * time.Millisecond
	rep := &recorder{}
	e := newEngine(cfg, &quoteSource{bid: 100, ask: 101, limit: -1}, barsProvider{}, referenceSource{price: 100}, rep, nil)

	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, engine.ErrNoInitialQuote)
	assert.ErrorIs(t, err, feed.ErrNoData)
	assert.Empty(t, rep.outcomes)
	assert.False(t, e.FeedStatus().Running)
}

func TestRun_NoReferencePrice(t *testing.T) {
	rep := &recorder{}
	e := newEngine(testConfig(time.Second), &quoteSource{bid: 100, ask: 101}, barsProvider{}, referenceSource{err: errors.New("all strategies failed")}, rep, nil)

	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, engine.ErrNoReferencePrice)
	assert.Empty(t, rep.snaps)
}

func TestRun_HistoryFailureFallsBackToFloor(t *testing.T) {
	rep := &recorder{}
	e := newEngine(testConfig(time.Second), &quoteSource{bid: 99.99, ask: 100.01}, barsProvider{err: errors.New("502 bad gateway")}, referenceSource{price: 100}, rep, nil)

	out, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Positive(t, out.Snapshots)

	rep.mu.Lock()
	defer rep.mu.Unlock()
	floor := volatility.AnnualToPerSecond(0.9)
	for _, s := range rep.snaps {
		assert.InDelta(t, floor, s.Variance.FloorPerSecond, 1e-24)
		assert.GreaterOrEqual(t, s.Variance.Forecast, floor*s.RemainingSeconds)
		assert.Zero(t, s.Drift.BasePerMin)
		assert.InDelta(t, floor, s.Variance.SigmaStar, 1e-24)
	}
}

func TestRun_StaleQuotesAreDegraded(t *testing.T) {
	rep := &recorder{}
	e := newEngine(testConfig(time.Second), &quoteSource{bid: 98.99, ask: 99.01, limit: 2}, barsProvider{}, referenceSource{price: 100}, rep, nil)

	out, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, out.Degraded)
	assert.Equal(t, domain.DirectionDown, out.Direction)
	assert.InDelta(t, 99.0, out.FinalPrice, 0.01)

	rep.mu.Lock()
	defer rep.mu.Unlock()
	var stale []domain.Snapshot
	for _, s := range rep.snaps {
		if s.Degraded {
			stale = append(stale, s)
		}
	}
	require.NotEmpty(t, stale)
	for _, s := range stale {
		assert.Zero(t, s.Variance.Microstructure)
		assert.Equal(t, s.Variance.SigmaStar, s.Variance.Measurement)
		assert.Equal(t, feed.StatusNoData, s.FeedStatus)
		assert.Less(t, s.PUp, 0.5)
	}
}

func TestRun_CancelledContextFinalizes(t *testing.T) {
	rep := &recorder{}
	e := newEngine(testConfig(time.Hour), &quoteSource{bid: 100.99, ask: 101.01}, barsProvider{}, referenceSource{price: 100}, rep, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	out, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionUp, out.Direction)
	assert.Zero(t, out.Degraded)

	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Len(t, rep.outcomes, 1)
	for _, s := range rep.snaps {
		assert.False(t, s.Degraded, "healthy feed reported degraded at %s", s.Time)
	}
}

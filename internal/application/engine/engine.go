// Package engine runs one estimation window: it establishes the reference
// price, keeps the volatility and drift models fresh and publishes a
// probability snapshot for every quote until the horizon ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/drift"
	"github.com/alejandrodnm/updown/internal/feed"
	"github.com/alejandrodnm/updown/internal/ports"
	"github.com/alejandrodnm/updown/internal/probability"
	"github.com/alejandrodnm/updown/internal/volatility"
)

// Startup failures. They are the only errors Run returns.
var (
	ErrNoInitialQuote   = errors.New("engine: no initial quote")
	ErrNoReferencePrice = errors.New("engine: no reference price")
)

const (
	// endEpsilon ends the loop slightly before the horizon.
	endEpsilon = 50 * time.Millisecond
	// a refreshed window needs this share of the configured minutes to refit.
	refitCoverage = 0.8
	// extra bars fetched beyond the drift lookback.
	driftTailExtra = 5
)

// LiveFeed is the part of feed.Feed the loop depends on.
type LiveFeed interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
	Status() feed.Status
	Latest(ctx context.Context, timeout time.Duration) (domain.Quote, bool)
}

// Config holds the run settings and model constants.
type Config struct {
	Horizon           time.Duration
	PollInterval      time.Duration
	FirstQuoteTimeout time.Duration
	FetchTimeout      time.Duration
	// ReferenceTime pins t0; zero aligns it to the horizon grid.
	ReferenceTime time.Time

	GarchMinutes      int
	DriftMinutes      int
	SmoothingSeconds  int
	LongTermDays      int
	FallbackAnnualVol float64

	DriftSpanMinutes float64
	OBIWeight        float64

	Volatility  volatility.Config
	Probability probability.Params
}

// Engine is the control loop. One Engine serves one run.
type Engine struct {
	cfg      Config
	feed     LiveFeed
	bars     ports.BarsProvider
	venues   map[string]ports.Venue
	reporter ports.Reporter
	journal  ports.SnapshotJournal
	drift    *drift.Estimator
	prob     *probability.Engine
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.RWMutex
	latest *domain.Snapshot
}

// New creates an engine with all collaborators injected. journal may be nil.
func New(
	cfg Config,
	lf LiveFeed,
	bars ports.BarsProvider,
	venues []ports.Venue,
	reporter ports.Reporter,
	journal ports.SnapshotJournal,
	log zerolog.Logger,
) *Engine {
	byName := make(map[string]ports.Venue, len(venues))
	for _, v := range venues {
		byName[v.Name] = v
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.FirstQuoteTimeout <= 0 {
		cfg.FirstQuoteTimeout = 15 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	l := log.With().Str("component", "engine").Logger()
	return &Engine{
		cfg:      cfg,
		feed:     lf,
		bars:     bars,
		venues:   byName,
		reporter: reporter,
		journal:  journal,
		drift:    drift.NewEstimator(cfg.DriftSpanMinutes, cfg.OBIWeight, log),
		prob:     probability.NewEngine(cfg.Probability),
		now:      time.Now,
		log:      l,
	}
}

// Latest returns the most recent snapshot, if any. Safe for concurrent use.
func (e *Engine) Latest() (domain.Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return domain.Snapshot{}, false
	}
	return *e.latest, true
}

// FeedStatus exposes the feed health for status endpoints.
func (e *Engine) FeedStatus() feed.Status {
	return e.feed.Status()
}

// Run executes INIT, streams until the horizon or until the feed stops, and
// reports the final outcome. Only startup failures are returned as errors.
func (e *Engine) Run(ctx context.Context) (domain.Outcome, error) {
	st, err := e.init(ctx)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer e.feed.Stop()

	e.stream(ctx, st)
	return e.finalize(context.WithoutCancel(ctx), st), nil
}

func (e *Engine) init(ctx context.Context) (*runState, error) {
	e.feed.Start(ctx)

	first, ok := e.feed.Latest(ctx, e.cfg.FirstQuoteTimeout)
	if !ok {
		status := e.feed.Status()
		e.feed.Stop()
		e.log.Error().Str("feed", status.State).Str("last_error", status.LastError).Msg("no initial quote")
		return nil, fmt.Errorf("%w: %w after %s: %s", ErrNoInitialQuote, feed.ErrNoData, e.cfg.FirstQuoteTimeout, status.LastError)
	}

	rc := domain.NewRunContext(e.now(), e.cfg.Horizon, e.cfg.ReferenceTime)
	rc.Venue, rc.Instrument, rc.Currency = first.Venue, first.Instrument, first.Currency

	venue, ok := e.venues[first.Venue]
	if !ok || venue.Reference == nil {
		e.feed.Stop()
		return nil, fmt.Errorf("%w: venue %q has no reference source", ErrNoReferencePrice, first.Venue)
	}
	price, method, err := e.referencePrice(ctx, venue, rc.ReferenceTime)
	if err != nil {
		e.feed.Stop()
		e.log.Error().Err(err).Str("venue", venue.Name).Time("t0", rc.ReferenceTime).Msg("reference price unavailable")
		return nil, fmt.Errorf("%w: %s at %s: %w", ErrNoReferencePrice, venue.Name, rc.ReferenceTime.Format(time.RFC3339), err)
	}
	rc.ReferencePrice, rc.ReferenceMethod = price, method

	floor := volatility.LoadFloor(ctx, venue.Daily, e.cfg.LongTermDays, e.cfg.FallbackAnnualVol, e.now(), e.log)
	st := newRunState(rc, volatility.NewModel(e.cfg.Volatility, floor, e.log), e.cfg.SmoothingSeconds)

	p, obi := first.EffectivePrice()
	rc.Observe(p, first.Time)
	st.obi.Push(obi)
	st.lastQuote = first

	e.log.Info().
		Str("run_id", rc.ID.String()).
		Str("venue", rc.Venue).
		Str("instrument", rc.Instrument).
		Time("t0", rc.ReferenceTime).
		Time("horizon_end", rc.HorizonEnd).
		Float64("reference_price", price).
		Str("method", method).
		Float64("floor_annual_vol", volatility.PerSecondToAnnual(floor)).
		Msg("run initialized")

	e.initialRefresh(ctx, st)
	return st, nil
}

func (e *Engine) referencePrice(ctx context.Context, venue ports.Venue, at time.Time) (float64, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	price, method, err := venue.Reference.OpenPrice(ctx, at)
	if err != nil {
		return 0, "", err
	}
	if !(price > 0) {
		return 0, "", fmt.Errorf("non-positive price %v from %s", price, method)
	}
	return price, method, nil
}

// stream is the STREAMING state. It returns at the horizon, when the feed
// stops or when ctx is cancelled.
func (e *Engine) stream(ctx context.Context, st *runState) {
	wait := e.cfg.PollInterval * 3 / 2
	for {
		now := e.now()
		if !now.Before(st.rc.HorizonEnd.Add(-endEpsilon)) {
			e.log.Info().Msg("horizon reached")
			return
		}
		if ctx.Err() != nil {
			e.log.Warn().Err(ctx.Err()).Msg("run cancelled before horizon")
			return
		}

		q, ok := e.feed.Latest(ctx, wait)
		if !ok {
			if ctx.Err() != nil {
				e.log.Warn().Err(ctx.Err()).Msg("run cancelled before horizon")
				return
			}
			if !e.feed.Running() {
				e.log.Warn().Msg("feed stopped, ending run")
				return
			}
			e.stale(ctx, st, e.now())
			continue
		}

		now = e.now()
		if minute := now.Truncate(time.Minute); minute.After(st.lastRefresh) {
			e.slowRefresh(ctx, st, now)
			st.lastRefresh = minute
		}
		e.fastUpdate(ctx, st, q, now)
	}
}

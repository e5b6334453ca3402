package engine

import (
	"context"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/metrics"
	"github.com/alejandrodnm/updown/internal/probability"
	"github.com/alejandrodnm/updown/internal/volatility"
)

// initialRefresh fetches the full history window once during INIT. Failure
// leaves the run on the floor variance and zero drift.
func (e *Engine) initialRefresh(ctx context.Context, st *runState) {
	now := e.now()
	st.lastRefresh = now.Truncate(time.Minute)

	bars, err := e.fetchHistory(ctx, st, now)
	if err != nil {
		e.log.Warn().Err(err).Msg("initial history unavailable, using floor variance and zero drift")
		return
	}
	if err := st.model.Refit(bars); err != nil {
		e.log.Warn().Err(err).Int("bars", len(bars)).Msg("initial refit failed, using floor variance")
	}
	e.refreshDrift(st, bars)
}

// slowRefresh refetches history and refits. Drift returns and sigma-star are
// replaced only after a successful refit; any failure clears drift returns
// and keeps the previous model.
func (e *Engine) slowRefresh(ctx context.Context, st *runState, now time.Time) {
	bars, err := e.fetchHistory(ctx, st, now)
	if err != nil {
		metrics.ModelRefits.WithLabelValues("skipped").Inc()
		e.log.Warn().Err(err).Msg("history refresh failed, keeping previous model")
		st.returns = nil
		return
	}
	need := int(refitCoverage * float64(e.cfg.GarchMinutes))
	if len(bars) < need {
		metrics.ModelRefits.WithLabelValues("skipped").Inc()
		e.log.Warn().Int("bars", len(bars)).Int("need", need).Msg("not enough history to refit, keeping previous model")
		st.returns = nil
		return
	}
	if err := st.model.Refit(bars); err != nil {
		e.log.Warn().Err(err).Msg("refit failed, keeping previous model")
		st.returns = nil
		return
	}
	e.refreshDrift(st, bars)
	e.log.Debug().
		Int("bars", len(bars)).
		Int("returns", len(st.returns)).
		Float64("sigma_star", st.sigmaStar).
		Msg("slow refresh")
}

func (e *Engine) fetchHistory(ctx context.Context, st *runState, now time.Time) ([]domain.Bar, error) {
	from := now.Add(-time.Duration(e.cfg.GarchMinutes) * time.Minute)
	return e.bars.FetchBars(ctx, st.rc.Venue, from, now)
}

func (e *Engine) refreshDrift(st *runState, bars []domain.Bar) {
	tail := domain.TailBars(bars, e.cfg.DriftMinutes+driftTailExtra)
	st.sigmaStar = st.model.SigmaStar(tail, st.rc.ReferenceMinute())
	st.returns = domain.LogReturns(tail)
}

// fastUpdate recomputes drift, variance and probability for a fresh quote.
func (e *Engine) fastUpdate(ctx context.Context, st *runState, q domain.Quote, now time.Time) {
	start := time.Now()

	price, obi := q.EffectivePrice()
	st.rc.Observe(price, q.Time)
	st.obi.Push(obi)
	st.lastQuote = q

	tau := st.rc.Remaining(now)
	fv, df := st.model.CumulativeVariance(tau)
	micro := volatility.Microstructure(q, price, fv, tau)

	snap := e.evaluate(st, now, price, tau, fv, df, micro)
	snap.ImbalanceLive = obi
	if q.HasTwoSidedBook() {
		snap.Bid, snap.Ask = q.Book.Bid, q.Book.Ask
	}
	snap.FeedStatus = e.feed.Status().State

	e.emit(ctx, st, snap)
	metrics.Ticks.WithLabelValues("live").Inc()
	metrics.TickSeconds.Observe(time.Since(start).Seconds())
}

// stale reports a degraded snapshot from the last known price. Measurement
// variance is sigma-star alone. At most one stale snapshot per poll interval.
func (e *Engine) stale(ctx context.Context, st *runState, now time.Time) {
	if !st.lastStale.IsZero() && now.Sub(st.lastStale) < e.cfg.PollInterval {
		return
	}
	st.lastStale = now

	status := e.feed.Status()
	e.log.Warn().Str("feed", status.State).Str("last_error", status.LastError).Msg("no fresh quote, using last known price")

	tau := st.rc.Remaining(now)
	fv, df := st.model.CumulativeVariance(tau)
	snap := e.evaluate(st, now, st.rc.LastPrice, tau, fv, df, 0)
	_, snap.ImbalanceLive = st.lastQuote.EffectivePrice()
	snap.Degraded = true
	snap.FeedStatus = status.State

	e.emit(ctx, st, snap)
	metrics.Ticks.WithLabelValues("stale").Inc()
}

func (e *Engine) evaluate(st *runState, now time.Time, price, tau, fv, df, micro float64) domain.Snapshot {
	rc := st.rc
	dc := e.drift.Estimate(st.returns, st.obi.Mean())
	meas := st.sigmaStar + micro
	res := e.prob.Evaluate(probability.Inputs{
		Displacement:        rc.Displacement(price),
		Tau:                 tau,
		ForecastVariance:    fv,
		DF:                  df,
		MeasurementVariance: meas,
		Drift:               dc.PerSecond,
	})
	return domain.Snapshot{
		RunID:            rc.ID.String(),
		Time:             now.UTC(),
		Venue:            rc.Venue,
		Instrument:       rc.Instrument,
		Currency:         rc.Currency,
		ReferencePrice:   rc.ReferencePrice,
		CurrentPrice:     price,
		ImbalanceSmooth:  st.obi.Mean(),
		RemainingSeconds: tau,
		Displacement:     rc.Displacement(price),
		EffectiveDrift:   res.EffectiveDrift,
		ExpectedDrift:    res.ExpectedDrift,
		Z:                res.Z,
		PUp:              res.PUp,
		PDown:            res.PDown,
		Drift:            dc,
		Variance: domain.VarianceComponents{
			Forecast:       fv,
			Jump:           res.JumpVariance,
			SigmaStar:      st.sigmaStar,
			Microstructure: micro,
			Measurement:    meas,
			Total:          res.TotalVariance,
			FloorPerSecond: st.model.FloorPerSecond(),
		},
	}
}

func (e *Engine) emit(ctx context.Context, st *runState, snap domain.Snapshot) {
	st.record(snap)

	metrics.ProbabilityUp.Set(snap.PUp)
	metrics.ForecastVariance.Set(snap.Variance.Forecast)
	metrics.MeasurementVariance.Set(snap.Variance.Measurement)
	metrics.DriftPerSecond.Set(snap.Drift.PerSecond)

	e.mu.Lock()
	e.latest = &snap
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.Append(ctx, snap); err != nil {
			e.log.Warn().Err(err).Msg("journal append failed")
		}
	}
	if err := e.reporter.Report(ctx, snap); err != nil {
		e.log.Warn().Err(err).Msg("report failed")
	}
}

// finalize is the FINALIZED state: realized direction plus run summary.
func (e *Engine) finalize(ctx context.Context, st *runState) domain.Outcome {
	rc := st.rc
	out := domain.Outcome{
		RunID:          rc.ID.String(),
		Venue:          rc.Venue,
		Instrument:     rc.Instrument,
		Currency:       rc.Currency,
		ReferenceTime:  rc.ReferenceTime,
		ReferencePrice: rc.ReferencePrice,
		FinalPrice:     rc.LastPrice,
		Direction:      domain.RealizedDirection(rc.ReferencePrice, rc.LastPrice),
		Snapshots:      st.snapshots,
		Degraded:       st.degraded,
	}
	if st.snapshots > 0 {
		out.MeanPUp = st.sumPUp / float64(st.snapshots)
	}
	if e.journal != nil {
		sum, err := e.journal.Summary(ctx)
		switch {
		case err != nil:
			e.log.Warn().Err(err).Msg("journal summary failed, using in-memory counters")
		case sum.Count > 0:
			out.Snapshots, out.Degraded, out.MeanPUp = sum.Count, sum.Degraded, sum.MeanPUp
		}
	}

	e.log.Info().
		Str("direction", string(out.Direction)).
		Float64("reference_price", out.ReferencePrice).
		Float64("final_price", out.FinalPrice).
		Int("snapshots", out.Snapshots).
		Int("degraded", out.Degraded).
		Msg("run finished")

	if err := e.reporter.Final(ctx, out); err != nil {
		e.log.Warn().Err(err).Msg("final report failed")
	}
	return out
}

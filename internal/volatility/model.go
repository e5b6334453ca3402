// Package volatility estimates the variance of the log price over the
// remaining horizon: a long-term floor, a GJR-GARCH forecast, the
// initial-instant range variance and the microstructure noise term.
package volatility

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/metrics"
)

const (
	// Epsilon is the smallest variance ever returned.
	Epsilon = 1e-18

	minReturnStd  = 1e-12
	winsorLow     = 0.01
	winsorHigh    = 0.99
	minSigmaBars  = 5
	sigmaClipLow  = 0.1
	sigmaClipHigh = 10.0
	microCapShare = 0.1
	microCapMin   = 1e-12
	microFallback = 0.0025 * 0.0025
)

// Config holds the fitting constants.
type Config struct {
	BucketMinutes int
	DF            float64
	MinBars       int
	MinCloses     int
}

// DefaultConfig matches the five-minute aggregation used in production.
func DefaultConfig() Config {
	return Config{BucketMinutes: 5, DF: 3, MinBars: 60, MinCloses: 20}
}

// Model holds the current fit. A fit is replaced wholesale by Refit and never
// mutated, so a failed refit leaves the previous good model in place.
type Model struct {
	cfg   Config
	floor float64
	fit   atomic.Pointer[GJR]
	log   zerolog.Logger
}

// NewModel creates a model with no fit. floorPerSec is the long-term
// per-second variance floor and stays fixed for the run.
func NewModel(cfg Config, floorPerSec float64, log zerolog.Logger) *Model {
	if cfg.BucketMinutes <= 0 {
		cfg.BucketMinutes = DefaultConfig().BucketMinutes
	}
	return &Model{
		cfg:   cfg,
		floor: floorPerSec,
		log:   log.With().Str("component", "volatility").Logger(),
	}
}

// FloorPerSecond returns the long-term variance floor.
func (m *Model) FloorPerSecond() float64 { return m.floor }

// HasFit reports whether a fitted model is available.
func (m *Model) HasFit() bool { return m.fit.Load() != nil }

// Fit returns the current fit or nil.
func (m *Model) Fit() *GJR { return m.fit.Load() }

func (m *Model) bucket() time.Duration {
	return time.Duration(m.cfg.BucketMinutes) * time.Minute
}

// Refit fits a new GJR-GARCH on minute bars. On any failure the previous fit
// is kept and the error is returned.
func (m *Model) Refit(bars []domain.Bar) error {
	g, err := m.fitBars(bars)
	if err != nil {
		metrics.ModelRefits.WithLabelValues("failed").Inc()
		return err
	}
	m.fit.Store(g)
	metrics.ModelRefits.WithLabelValues("ok").Inc()
	m.log.Debug().
		Float64("omega", g.Omega).
		Float64("alpha", g.Alpha).
		Float64("gamma", g.Gamma).
		Float64("beta", g.Beta).
		Float64("nu", g.Nu).
		Int("obs", g.Observations()).
		Msg("garch refit")
	return nil
}

func (m *Model) fitBars(bars []domain.Bar) (*GJR, error) {
	if len(bars) < m.cfg.MinBars {
		return nil, fmt.Errorf("volatility.Refit: %w: %d bars", ErrInsufficientData, len(bars))
	}
	closes := aggregateCloses(bars, m.bucket())
	if len(closes) < m.cfg.MinCloses {
		return nil, fmt.Errorf("volatility.Refit: %w: %d aggregated closes", ErrInsufficientData, len(closes))
	}
	rets := percentReturns(closes)
	if len(rets) < 2 || stat.StdDev(rets, nil) < minReturnStd {
		return nil, fmt.Errorf("volatility.Refit: %w: flat returns", ErrInsufficientData)
	}
	g, err := FitGJR(winsorize(rets, winsorLow, winsorHigh))
	if err != nil {
		return nil, fmt.Errorf("volatility.Refit: %w", err)
	}
	return g, nil
}

// CumulativeVariance returns the log-return variance accumulated over tau
// seconds and the Student-t degrees of freedom to use with it. The result is
// non-decreasing in tau for a fixed fit.
func (m *Model) CumulativeVariance(tau float64) (float64, float64) {
	g := m.fit.Load()
	if g == nil {
		return math.Max(m.floor*math.Max(tau, 1), Epsilon), m.cfg.DF
	}
	if tau <= 0 {
		return Epsilon, m.cfg.DF
	}

	bucketSec := m.bucket().Seconds()
	stepFloor := m.floor * bucketSec
	steps := max(int(math.Ceil(tau/bucketSec)), 1)
	full := int(math.Floor(tau / bucketSec))
	ratio := (tau - float64(full)*bucketSec) / bucketSec

	f := g.Forecast(steps)
	for i, v := range f {
		v /= 1e4
		if math.IsNaN(v) || v < stepFloor {
			v = stepFloor
		}
		f[i] = v
	}

	var total float64
	for i := 0; i < min(full, len(f)); i++ {
		total += f[i]
	}
	if ratio > 0 {
		total += f[min(full, len(f)-1)] * ratio
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return math.Max(m.floor*tau, Epsilon), m.cfg.DF
	}
	return math.Max(total, Epsilon), m.cfg.DF
}

// SigmaStar is the per-second initial-instant variance. It uses the range
// variance of the bar at refMinute when that is positive, else the median
// range variance of bars clipped around the floor.
func (m *Model) SigmaStar(bars []domain.Bar, refMinute time.Time) float64 {
	if len(bars) < minSigmaBars {
		return m.floor
	}
	lower := sigmaClipLow * m.floor

	ref := refMinute.Truncate(time.Minute)
	for _, b := range bars {
		if b.OpenTime.Equal(ref) {
			if rs := b.RangeVariance(); rs > 0 {
				return math.Max(rs/60, lower)
			}
			break
		}
	}

	rs := make([]float64, 0, len(bars))
	for _, b := range bars {
		rs = append(rs, b.RangeVariance())
	}
	perMinuteFloor := m.floor * 60
	med := median(rs)
	med = math.Min(math.Max(med, sigmaClipLow*perMinuteFloor), sigmaClipHigh*perMinuteFloor)
	return math.Max(med/60, lower)
}

// Microstructure is the squared relative half-spread, capped at a share of
// the per-second forecast variance. Zero without a usable two-sided book.
func Microstructure(q domain.Quote, price, forecast, tau float64) float64 {
	half, ok := q.HalfSpreadRel(price)
	if !ok {
		return 0
	}
	limit := microFallback
	if forecast > 0 {
		limit = forecast / math.Max(tau, 1) * microCapShare
	}
	return math.Min(half*half, math.Max(limit, microCapMin))
}

// Package drift estimates the short-term per-second drift from recent minute
// returns and the order-book imbalance.
package drift

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/domain"
)

const (
	// MinObservations is the number of returns below which drift is zero.
	MinObservations = 5

	minSpan = 2
	minStd  = 1e-10
)

// Estimator blends an EWMA of minute log returns with an imbalance signal.
type Estimator struct {
	span      float64
	obiWeight float64
	log       zerolog.Logger
}

// NewEstimator creates an estimator. spanMinutes below 2 is raised to 2.
func NewEstimator(spanMinutes, obiWeight float64, log zerolog.Logger) *Estimator {
	return &Estimator{
		span:      math.Max(spanMinutes, minSpan),
		obiWeight: obiWeight,
		log:       log.With().Str("component", "drift").Logger(),
	}
}

// Signal maps an imbalance in [0,1] to a centered signal in [-1,1].
func Signal(obi float64) float64 {
	return 2 * (obi - domain.NeutralImbalance)
}

// Estimate returns the drift breakdown for minute log returns (oldest first)
// and the smoothed imbalance. Mean reversion is not applied here.
func (e *Estimator) Estimate(returns []float64, obi float64) domain.DriftComponents {
	signal := Signal(obi)
	if len(returns) < MinObservations {
		return domain.DriftComponents{Signal: signal}
	}

	mean, std := EWMA(returns, e.span)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		e.log.Debug().Int("returns", len(returns)).Msg("non-finite ewma mean, using zero drift")
		return domain.DriftComponents{Signal: signal}
	}
	if math.IsNaN(std) || std < minStd {
		std = minStd
	}

	imb := signal * std * e.obiWeight
	perMin := mean + imb
	return domain.DriftComponents{
		BasePerMin:      mean,
		ImbalancePerMin: imb,
		Signal:          signal,
		EWMAStdPerMin:   std,
		PerSecond:       perMin / 60,
	}
}

// EWMA returns the exponentially weighted mean and bias-corrected standard
// deviation of xs with α = 2/(span+1), weighting the newest observation
// most. Weights are normalized over the observed window.
func EWMA(xs []float64, span float64) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}
	alpha := 2 / (span + 1)
	decay := 1 - alpha

	w := make([]float64, n)
	var sw, sw2 float64
	cur := 1.0
	for i := n - 1; i >= 0; i-- {
		w[i] = cur
		sw += cur
		sw2 += cur * cur
		cur *= decay
	}

	for i, x := range xs {
		mean += w[i] * x
	}
	mean /= sw

	var v float64
	for i, x := range xs {
		d := x - mean
		v += w[i] * d * d
	}
	v /= sw
	denom := sw*sw - sw2
	if denom <= 0 {
		return mean, 0
	}
	v *= sw * sw / denom
	return mean, math.Sqrt(math.Max(v, 0))
}

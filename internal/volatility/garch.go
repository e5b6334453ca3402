package volatility

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	minNu         = 2.05
	maxNu         = 500.0
	maxPersist    = 0.9999
	backcastLen   = 75
	backcastDecay = 0.94
	penalty       = 1e12
	maxFuncEvals  = 6000
)

// ErrFitFailed is returned when the likelihood optimisation produced no usable parameters.
var ErrFitFailed = errors.New("volatility: garch fit failed")

// GJR is a fitted zero-mean GJR-GARCH(1,1,1) with Student-t innovations.
// Values are in percent-return units. A GJR is immutable once fitted.
type GJR struct {
	Omega float64
	Alpha float64
	Gamma float64
	Beta  float64
	Nu    float64

	// next is the one-step-ahead conditional variance after the last observation.
	next float64
	nobs int
	logL float64
}

// Persistence is α + γ/2 + β.
func (g *GJR) Persistence() float64 { return g.Alpha + g.Gamma/2 + g.Beta }

// Observations returns the number of returns the model was fitted on.
func (g *GJR) Observations() int { return g.nobs }

// LogLikelihood returns the maximised log-likelihood.
func (g *GJR) LogLikelihood() float64 { return g.logL }

// Forecast returns the analytic 1..h step-ahead conditional variances.
// With symmetric innovations the asymmetry term contributes γ/2 beyond step one.
func (g *GJR) Forecast(h int) []float64 {
	if h <= 0 {
		return nil
	}
	out := make([]float64, h)
	out[0] = g.next
	p := g.Persistence()
	for i := 1; i < h; i++ {
		out[i] = g.Omega + p*out[i-1]
	}
	return out
}

// FitGJR estimates the model on percent returns by maximum likelihood.
func FitGJR(returns []float64) (*GJR, error) {
	if len(returns) < 10 {
		return nil, fmt.Errorf("%w: %d returns", ErrInsufficientData, len(returns))
	}
	variance := stat.Variance(returns, nil)
	if !(variance > 0) || math.IsInf(variance, 0) {
		return nil, fmt.Errorf("%w: degenerate variance %g", ErrFitFailed, variance)
	}
	bc := backcast(returns)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			nll, ok := negLogLik(x, returns, bc)
			if !ok {
				return penalty
			}
			return nll
		},
	}
	start := []float64{variance * (1 - 0.925), 0.05, 0.05, 0.85, 8}
	settings := &optimize.Settings{FuncEvaluations: maxFuncEvals}

	res, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if res == nil {
		return nil, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}
	x := res.X
	nll, ok := negLogLik(x, returns, bc)
	if !ok || math.IsNaN(nll) || math.IsInf(nll, 0) {
		return nil, fmt.Errorf("%w: status %v", ErrFitFailed, res.Status)
	}

	g := &GJR{Omega: x[0], Alpha: x[1], Gamma: x[2], Beta: x[3], Nu: x[4], nobs: len(returns), logL: -nll}
	g.next = g.filter(returns, bc)
	if !(g.next > 0) || math.IsInf(g.next, 0) {
		return nil, fmt.Errorf("%w: non-positive forecast variance", ErrFitFailed)
	}
	return g, nil
}

// filter runs the variance recursion and returns σ²_{T+1}.
func (g *GJR) filter(r []float64, bc float64) float64 {
	prevR2, prevNeg, prevVar := bc, bc/2, bc
	for _, x := range r {
		s2 := g.Omega + g.Alpha*prevR2 + g.Gamma*prevNeg + g.Beta*prevVar
		prevR2 = x * x
		prevNeg = 0
		if x < 0 {
			prevNeg = prevR2
		}
		prevVar = s2
	}
	return g.Omega + g.Alpha*prevR2 + g.Gamma*prevNeg + g.Beta*prevVar
}

func valid(x []float64) bool {
	omega, alpha, gamma, beta, nu := x[0], x[1], x[2], x[3], x[4]
	switch {
	case omega <= 0, alpha < 0, alpha+gamma < 0, beta < 0:
		return false
	case alpha+gamma/2+beta >= maxPersist:
		return false
	case nu <= minNu, nu >= maxNu:
		return false
	}
	return true
}

// negLogLik is the standardized Student-t negative log-likelihood.
func negLogLik(x, r []float64, bc float64) (float64, bool) {
	if !valid(x) {
		return 0, false
	}
	omega, alpha, gamma, beta, nu := x[0], x[1], x[2], x[3], x[4]
	lg1, _ := math.Lgamma((nu + 1) / 2)
	lg2, _ := math.Lgamma(nu / 2)
	c := lg1 - lg2 - 0.5*math.Log(math.Pi*(nu-2))

	prevR2, prevNeg, prevVar := bc, bc/2, bc
	var ll float64
	for _, v := range r {
		s2 := omega + alpha*prevR2 + gamma*prevNeg + beta*prevVar
		if !(s2 > 0) {
			return 0, false
		}
		ll += c - 0.5*math.Log(s2) - (nu+1)/2*math.Log1p(v*v/(s2*(nu-2)))
		prevR2 = v * v
		prevNeg = 0
		if v < 0 {
			prevNeg = prevR2
		}
		prevVar = s2
	}
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, false
	}
	return -ll, true
}

// backcast is the exponentially weighted mean of the first squared returns,
// used as the pre-sample variance.
func backcast(r []float64) float64 {
	n := min(len(r), backcastLen)
	var num, den float64
	w := 1.0
	for i := 0; i < n; i++ {
		num += w * r[i] * r[i]
		den += w
		w *= backcastDecay
	}
	if den == 0 {
		return 0
	}
	return num / den
}

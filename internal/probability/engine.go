// Package probability maps displacement, drift and variance to the
// probability of finishing above the reference price.
package probability

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	varianceEpsilon = 1e-18
	// total variance at or below this is treated as uninformative.
	minTotalVariance = 1e-12
	minKappa         = 1e-9
)

// Params are the fixed process constants of a run.
type Params struct {
	DF           float64 // Student-t degrees of freedom when the model gives none
	KappaPerSec  float64 // drift decay rate
	Theta        float64 // mean reversion toward the reference, per second
	LambdaPerSec float64 // jump intensity
	SigmaJump    float64 // jump size in log-return units
}

// KappaFromHalfLife converts a half-life into a per-second decay rate.
// A non-positive half-life disables decay.
func KappaFromHalfLife(halfLifeSec float64) float64 {
	if halfLifeSec <= 0 {
		return 0
	}
	return math.Ln2 / halfLifeSec
}

// Inputs are the per-tick values fed to Evaluate.
type Inputs struct {
	Displacement        float64 // ln(price) − ln(reference)
	Tau                 float64 // seconds to the horizon
	ForecastVariance    float64
	DF                  float64
	MeasurementVariance float64
	Drift               float64 // raw per-second drift before mean reversion
}

// Result is the outcome of one evaluation.
type Result struct {
	PUp            float64
	PDown          float64
	Z              float64
	EffectiveDrift float64
	ExpectedDrift  float64
	JumpVariance   float64
	TotalVariance  float64
}

// Engine evaluates the jump-diffusion Student-t probability.
type Engine struct {
	params Params
}

// NewEngine creates an engine with fixed params.
func NewEngine(p Params) *Engine {
	return &Engine{params: p}
}

// Params returns the engine constants.
func (e *Engine) Params() Params { return e.params }

// JumpVariance is λ·τ·σ_J², never negative.
func (e *Engine) JumpVariance(tau float64) float64 {
	return math.Max(e.params.LambdaPerSec*tau*e.params.SigmaJump*e.params.SigmaJump, 0)
}

// Evaluate computes P(up) for one tick. Mean reversion is applied here and
// only here: μ_eff = μ − θ·δ.
func (e *Engine) Evaluate(in Inputs) Result {
	res := Result{EffectiveDrift: in.Drift - e.params.Theta*in.Displacement}

	if in.Tau <= 0 {
		if in.Displacement > 0 {
			res.PUp = 1
		}
		res.PDown = 1 - res.PUp
		return res
	}

	kappa := e.params.KappaPerSec
	if kappa > minKappa {
		res.ExpectedDrift = res.EffectiveDrift / kappa * (1 - math.Exp(-kappa*in.Tau))
	} else {
		res.ExpectedDrift = res.EffectiveDrift * in.Tau
	}

	res.JumpVariance = e.JumpVariance(in.Tau)
	res.TotalVariance = math.Max(in.ForecastVariance, varianceEpsilon) +
		res.JumpVariance +
		math.Max(in.MeasurementVariance, varianceEpsilon)

	signal := in.Displacement + res.ExpectedDrift
	if !(res.TotalVariance > minTotalVariance) || math.IsInf(res.TotalVariance, 0) {
		return neutral(res)
	}
	z := signal / math.Sqrt(res.TotalVariance)
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return neutral(res)
	}

	df := in.DF
	if !(df > 0) {
		df = e.params.DF
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	cdf := t.CDF(z)
	if math.IsNaN(cdf) {
		return neutral(res)
	}
	p := math.Min(math.Max(cdf, 0), 1)

	res.Z = z
	res.PUp = p
	res.PDown = 1 - p
	return res
}

func neutral(res Result) Result {
	res.Z = 0
	res.PUp, res.PDown = 0.5, 0.5
	return res
}

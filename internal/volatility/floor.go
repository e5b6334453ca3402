package volatility

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/alejandrodnm/updown/internal/ports"
)

const (
	SecondsPerDay  = 24 * 60 * 60
	SecondsPerYear = 365.25 * SecondsPerDay

	minAnnualVol = 0.15
	maxAnnualVol = 2.50
	// fewer daily closes than this share of the requested days is logged.
	dailyCoverageWarn = 0.7
)

// ErrInsufficientData is returned when a series is too short to estimate from.
var ErrInsufficientData = errors.New("volatility: insufficient data")

// AnnualToPerSecond converts an annualized volatility into per-second variance.
func AnnualToPerSecond(annualVol float64) float64 {
	return annualVol * annualVol / SecondsPerYear
}

// PerSecondToAnnual converts per-second variance back to annualized volatility.
func PerSecondToAnnual(varPerSec float64) float64 {
	if varPerSec <= 0 {
		return 0
	}
	return math.Sqrt(varPerSec * SecondsPerYear)
}

// FloorFromCloses computes the long-term per-second variance floor from daily
// closes: sample std of daily log returns × √365.25, clipped to [15%, 250%],
// never below the fallback volatility.
func FloorFromCloses(closes []float64, days int, fallbackAnnualVol float64) (float64, error) {
	positive := make([]float64, 0, len(closes))
	for _, c := range closes {
		if c > 0 {
			positive = append(positive, c)
		}
	}
	if len(positive) < 2 {
		return 0, fmt.Errorf("%w: %d positive closes", ErrInsufficientData, len(positive))
	}

	rets := make([]float64, 0, len(positive)-1)
	for i := 1; i < len(positive); i++ {
		r := math.Log(positive[i] / positive[i-1])
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			rets = append(rets, r)
		}
	}
	if float64(len(rets)) < math.Max(float64(days)*0.5, 10) {
		return 0, fmt.Errorf("%w: %d valid log returns", ErrInsufficientData, len(rets))
	}

	annual := stat.StdDev(rets, nil) * math.Sqrt(365.25)
	annual = math.Min(math.Max(annual, minAnnualVol), maxAnnualVol)
	return math.Max(AnnualToPerSecond(annual), AnnualToPerSecond(fallbackAnnualVol)), nil
}

// LoadFloor fetches daily closes for the window ending one day before now and
// derives the floor. Any failure degrades to the fallback volatility.
func LoadFloor(ctx context.Context, src ports.DailyCloseProvider, days int, fallbackAnnualVol float64, now time.Time, log zerolog.Logger) float64 {
	fallback := AnnualToPerSecond(fallbackAnnualVol)
	if src == nil {
		log.Warn().Float64("fallback_vol", fallbackAnnualVol).Msg("no daily close source, using fallback floor")
		return fallback
	}

	end := now.UTC().Add(-24 * time.Hour)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	closes, err := src.DailyCloses(ctx, start, end)
	if err != nil {
		log.Warn().Err(err).Float64("fallback_vol", fallbackAnnualVol).Msg("long-term volatility unavailable, using fallback")
		return fallback
	}
	if float64(len(closes)) < float64(days)*dailyCoverageWarn {
		log.Warn().Int("closes", len(closes)).Int("days", days).Msg("few daily closes for long-term volatility")
	}

	floor, err := FloorFromCloses(closes, days, fallbackAnnualVol)
	if err != nil {
		log.Warn().Err(err).Float64("fallback_vol", fallbackAnnualVol).Msg("long-term volatility unavailable, using fallback")
		return fallback
	}
	log.Info().
		Int("returns", len(closes)-1).
		Float64("annual_vol", PerSecondToAnnual(floor)).
		Float64("floor_per_second", floor).
		Msg("long-term variance floor")
	return floor
}

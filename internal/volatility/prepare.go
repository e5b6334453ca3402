package volatility

import (
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

// aggregateCloses resamples minute bars into buckets and keeps the last
// positive close of each non-empty bucket. bars must be sorted.
func aggregateCloses(bars []domain.Bar, bucket time.Duration) []float64 {
	out := make([]float64, 0, len(bars)/max(int(bucket/time.Minute), 1)+1)
	var current time.Time
	for _, b := range bars {
		if b.Close <= 0 {
			continue
		}
		key := b.OpenTime.Truncate(bucket)
		if len(out) == 0 || !key.Equal(current) {
			out = append(out, b.Close)
			current = key
			continue
		}
		out[len(out)-1] = b.Close
	}
	return out
}

// percentReturns returns 100×ln(p_i/p_{i−1}), skipping non-finite values.
func percentReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		r := 100 * math.Log(closes[i]/closes[i-1])
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// winsorize clips xs to its [lo, hi] quantiles in place.
func winsorize(xs []float64, lo, hi float64) []float64 {
	if len(xs) == 0 {
		return xs
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	qLo, qHi := quantile(sorted, lo), quantile(sorted, hi)
	for i, x := range xs {
		xs[i] = math.Min(math.Max(x, qLo), qHi)
	}
	return xs
}

// quantile uses linear interpolation between closest ranks (the
// (n−1)p+1 definition) on an already sorted slice.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := p * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return quantile(sorted, 0.5)
}

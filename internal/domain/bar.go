package domain

import (
	"math"
	"sort"
	"time"
)

// Bar is a one-minute OHLC candle. OpenTime is minute-aligned.
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// Valid reports whether every price is positive and finite.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !b.OpenTime.IsZero()
}

// Normalize widens high/low so that high ≥ max(open, close) ≥ min(open, close) ≥ low.
func (b Bar) Normalize() Bar {
	if b.High < b.Low {
		b.High, b.Low = b.Low, b.High
	}
	b.High = math.Max(b.High, math.Max(b.Open, b.Close))
	b.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
	return b
}

// RangeVariance is the Rogers–Satchell single-bar variance
// (ln H − ln O)(ln H − ln C) + (ln L − ln O)(ln L − ln C), clamped at zero.
func (b Bar) RangeVariance() float64 {
	if !b.Valid() {
		return 0
	}
	h, l := b.High, b.Low
	if h < l {
		h, l = l, h
	}
	lo, lh, ll, lc := math.Log(b.Open), math.Log(h), math.Log(l), math.Log(b.Close)
	v := (lh-lo)*(lh-lc) + (ll-lo)*(ll-lc)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// CleanBars drops invalid rows, deduplicates by open time (first occurrence
// wins), keeps bars in [from, to) and returns them sorted by open time.
func CleanBars(raw []Bar, from, to time.Time) []Bar {
	seen := make(map[int64]struct{}, len(raw))
	out := make([]Bar, 0, len(raw))
	for _, b := range raw {
		if !b.Valid() {
			continue
		}
		if b.OpenTime.Before(from) || !b.OpenTime.Before(to) {
			continue
		}
		key := b.OpenTime.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b.Normalize())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

// LogReturns computes ln(c_i / c_{i−1}) between consecutive bars, skipping
// non-finite results. Gaps are not filled.
func LogReturns(bars []Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		r := math.Log(cur / prev)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TailBars returns the last n bars (or all of them if fewer).
func TailBars(bars []Bar, n int) []Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

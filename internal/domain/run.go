package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// RunContext is the per-run state owned by the control loop.
// ReferencePrice is set once at startup and never changes afterwards.
type RunContext struct {
	ID              uuid.UUID
	ReferenceTime   time.Time
	HorizonEnd      time.Time
	ReferencePrice  float64
	ReferenceMethod string
	Venue           string
	Instrument      string
	Currency        string
	LastPrice       float64
	LastQuoteAt     time.Time
}

// NewRunContext aligns the reference time to the horizon grid (for example the
// current quarter hour for a 15-minute horizon) unless pinned is non-zero.
func NewRunContext(now time.Time, horizon time.Duration, pinned time.Time) *RunContext {
	t0 := pinned
	if t0.IsZero() {
		t0 = now.UTC().Truncate(horizon)
	}
	return &RunContext{
		ID:            uuid.New(),
		ReferenceTime: t0.UTC(),
		HorizonEnd:    t0.UTC().Add(horizon),
	}
}

// ReferenceMinute is the minute bucket containing the reference time.
func (rc *RunContext) ReferenceMinute() time.Time {
	return rc.ReferenceTime.Truncate(time.Minute)
}

// Remaining returns the seconds left until the horizon end, floored at zero.
func (rc *RunContext) Remaining(now time.Time) float64 {
	return math.Max(0, rc.HorizonEnd.Sub(now).Seconds())
}

// Displacement is ln(price) − ln(reference). Zero when either is non-positive.
func (rc *RunContext) Displacement(price float64) float64 {
	if price <= 0 || rc.ReferencePrice <= 0 {
		return 0
	}
	return math.Log(price) - math.Log(rc.ReferencePrice)
}

// Observe records a valid price as the last known price.
func (rc *RunContext) Observe(price float64, at time.Time) {
	if price > 0 {
		rc.LastPrice = price
		rc.LastQuoteAt = at
	}
}

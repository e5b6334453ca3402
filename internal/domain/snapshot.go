package domain

import (
	"math"
	"time"
)

// DriftComponents is the breakdown of a drift estimate. Per-minute values are
// in log-return units.
type DriftComponents struct {
	BasePerMin      float64 `json:"base_per_min"`
	ImbalancePerMin float64 `json:"imbalance_per_min"`
	Signal          float64 `json:"signal"`
	EWMAStdPerMin   float64 `json:"ewma_std_per_min"`
	PerSecond       float64 `json:"per_second"`
}

// VarianceComponents is the breakdown of the probability denominator.
type VarianceComponents struct {
	Forecast       float64 `json:"forecast"`
	Jump           float64 `json:"jump"`
	SigmaStar      float64 `json:"sigma_star"`
	Microstructure float64 `json:"microstructure"`
	Measurement    float64 `json:"measurement"`
	Total          float64 `json:"total"`
	FloorPerSecond float64 `json:"floor_per_second"`
}

// Snapshot is the per-tick record handed to reporters.
type Snapshot struct {
	RunID            string             `json:"run_id"`
	Time             time.Time          `json:"time"`
	Venue            string             `json:"venue"`
	Instrument       string             `json:"instrument"`
	Currency         string             `json:"currency"`
	ReferencePrice   float64            `json:"reference_price"`
	CurrentPrice     float64            `json:"current_price"`
	Bid              float64            `json:"bid,omitempty"`
	Ask              float64            `json:"ask,omitempty"`
	ImbalanceLive    float64            `json:"imbalance_live"`
	ImbalanceSmooth  float64            `json:"imbalance_smoothed"`
	RemainingSeconds float64            `json:"remaining_seconds"`
	Displacement     float64            `json:"displacement"`
	EffectiveDrift   float64            `json:"effective_drift"`
	ExpectedDrift    float64            `json:"expected_drift"`
	Z                float64            `json:"z"`
	PUp              float64            `json:"p_up"`
	PDown            float64            `json:"p_down"`
	Drift            DriftComponents    `json:"drift"`
	Variance         VarianceComponents `json:"variance"`
	Degraded         bool               `json:"degraded"`
	FeedStatus       string             `json:"feed_status"`
}

// Direction is the realized direction at the horizon.
type Direction string

const (
	DirectionUp           Direction = "UP"
	DirectionDown         Direction = "DOWN"
	DirectionUndetermined Direction = "UNDETERMINED"
)

// Outcome is reported once when the run finishes.
type Outcome struct {
	RunID          string
	Venue          string
	Instrument     string
	Currency       string
	ReferenceTime  time.Time
	ReferencePrice float64
	FinalPrice     float64
	Direction      Direction
	Snapshots      int
	Degraded       int
	MeanPUp        float64
}

// RealizedDirection compares the final price to the reference price in log space.
func RealizedDirection(reference, final float64) Direction {
	if reference <= 0 || final <= 0 {
		return DirectionUndetermined
	}
	if math.Log(final) > math.Log(reference) {
		return DirectionUp
	}
	return DirectionDown
}

package engine

import (
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/drift"
	"github.com/alejandrodnm/updown/internal/volatility"
)

// runState is everything the loop mutates during a run. Only the goroutine
// running Engine.Run touches it.
type runState struct {
	rc    *domain.RunContext
	model *volatility.Model
	obi   *drift.ImbalanceWindow

	// returns are minute log returns of the drift lookback; nil after a failed refresh.
	returns   []float64
	sigmaStar float64

	lastRefresh time.Time
	lastQuote   domain.Quote
	lastStale   time.Time

	snapshots int
	degraded  int
	sumPUp    float64
}

func newRunState(rc *domain.RunContext, model *volatility.Model, smoothingSeconds int) *runState {
	return &runState{
		rc:        rc,
		model:     model,
		obi:       drift.NewImbalanceWindow(smoothingSeconds),
		sigmaStar: model.FloorPerSecond(),
	}
}

func (st *runState) record(snap domain.Snapshot) {
	st.snapshots++
	st.sumPUp += snap.PUp
	if snap.Degraded {
		st.degraded++
	}
}

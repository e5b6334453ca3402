package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestQuote_WeightedMid(t *testing.T) {
	q := domain.NewBookQuote(100, 102, 3, 1)
	assert.InDelta(t, 101.0, q.Mid, 1e-12)

	wmp, obi, ok := q.WeightedMid()
	require.True(t, ok)
	assert.InDelta(t, 101.5, wmp, 1e-12)
	assert.InDelta(t, 0.75, obi, 1e-12)

	price, imb := q.EffectivePrice()
	assert.InDelta(t, 101.5, price, 1e-12)
	assert.InDelta(t, 0.75, imb, 1e-12)
}

func TestQuote_EffectivePriceFallsBackToMid(t *testing.T) {
	tests := []struct {
		name string
		q    domain.Quote
		mid  float64
	}{
		{"no depth", domain.NewBookQuote(100, 102, 0, 0), 101},
		{"negative sizes clamp to zero", domain.NewBookQuote(100, 102, -1, -2), 101},
		{"last price only", domain.Quote{Mid: 99.5}, 99.5},
		{"one-sided book", domain.NewBookQuote(0, 102, 1, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := tt.q.WeightedMid()
			assert.False(t, ok)
			price, obi := tt.q.EffectivePrice()
			assert.InDelta(t, tt.mid, price, 1e-12)
			assert.Equal(t, domain.NeutralImbalance, obi)
		})
	}
}

func TestQuote_Valid(t *testing.T) {
	assert.True(t, domain.NewBookQuote(100, 101, 1, 1).Valid())
	assert.False(t, domain.NewBookQuote(0, 101, 1, 1).Valid())
	assert.False(t, domain.Quote{Mid: math.NaN()}.Valid())
	assert.False(t, domain.Quote{Mid: math.Inf(1)}.Valid())
}

func TestQuote_HalfSpreadRel(t *testing.T) {
	hs, ok := domain.NewBookQuote(100, 102, 1, 1).HalfSpreadRel(100)
	require.True(t, ok)
	assert.InDelta(t, 0.01, hs, 1e-12)

	_, ok = domain.NewBookQuote(101, 100, 1, 1).HalfSpreadRel(100)
	assert.False(t, ok, "crossed book")

	_, ok = domain.Quote{Mid: 100}.HalfSpreadRel(100)
	assert.False(t, ok, "no book")

	_, ok = domain.NewBookQuote(100, 102, 1, 1).HalfSpreadRel(0)
	assert.False(t, ok, "zero price")
}

func TestBar_RangeVariance(t *testing.T) {
	b := domain.Bar{OpenTime: t0, Open: 100, High: 110, Low: 90, Close: 100}
	want := math.Log(1.1)*math.Log(1.1) + math.Log(0.9)*math.Log(0.9)
	assert.InDelta(t, want, b.RangeVariance(), 1e-15)

	flat := domain.Bar{OpenTime: t0, Open: 100, High: 100, Low: 100, Close: 100}
	assert.Zero(t, flat.RangeVariance())

	assert.Zero(t, domain.Bar{OpenTime: t0, Open: 100, High: 0, Low: 90, Close: 100}.RangeVariance())
}

func TestBar_Normalize(t *testing.T) {
	b := domain.Bar{OpenTime: t0, Open: 100, High: 95, Low: 105, Close: 108}.Normalize()
	assert.Equal(t, 108.0, b.High)
	assert.Equal(t, 95.0, b.Low)
}

func TestCleanBars(t *testing.T) {
	bar := func(min int, close float64) domain.Bar {
		return domain.Bar{OpenTime: t0.Add(time.Duration(min) * time.Minute), Open: 100, High: 101, Low: 99, Close: close}
	}
	raw := []domain.Bar{
		bar(2, 100.2),
		bar(0, 100.0),
		bar(2, 999), // duplicate, first wins
		bar(1, 100.1),
		{OpenTime: t0.Add(3 * time.Minute), Open: 100, High: 101, Low: 99, Close: math.NaN()},
		bar(-1, 99.9), // before from
		bar(5, 100.5), // at to, excluded
	}

	got := domain.CleanBars(raw, t0, t0.Add(5*time.Minute))
	require.Len(t, got, 3)
	for i, b := range got {
		assert.Equal(t, t0.Add(time.Duration(i)*time.Minute), b.OpenTime)
	}
	assert.Equal(t, 100.2, got[2].Close)
}

func TestLogReturns(t *testing.T) {
	bars := []domain.Bar{{Close: 100}, {Close: 110}, {Close: 0}, {Close: 99}}
	got := domain.LogReturns(bars)
	require.Len(t, got, 1)
	assert.InDelta(t, math.Log(1.1), got[0], 1e-15)

	assert.Nil(t, domain.LogReturns(bars[:1]))
}

func TestTailBars(t *testing.T) {
	bars := make([]domain.Bar, 10)
	assert.Len(t, domain.TailBars(bars, 3), 3)
	assert.Len(t, domain.TailBars(bars, 20), 10)
	assert.Len(t, domain.TailBars(bars, 0), 10)
}

func TestRunContext(t *testing.T) {
	now := t0.Add(7*time.Minute + 30*time.Second)

	rc := domain.NewRunContext(now, 15*time.Minute, time.Time{})
	assert.Equal(t, t0, rc.ReferenceTime)
	assert.Equal(t, t0.Add(15*time.Minute), rc.HorizonEnd)
	assert.Equal(t, t0, rc.ReferenceMinute())
	assert.NotEqual(t, rc.ID.String(), domain.NewRunContext(now, 15*time.Minute, time.Time{}).ID.String())

	assert.InDelta(t, 60.0, rc.Remaining(t0.Add(14*time.Minute)), 1e-9)
	assert.Zero(t, rc.Remaining(t0.Add(16*time.Minute)))

	rc.ReferencePrice = 100
	assert.InDelta(t, math.Log(1.01), rc.Displacement(101), 1e-15)
	assert.Zero(t, rc.Displacement(0))

	rc.Observe(101, now)
	rc.Observe(0, now.Add(time.Second))
	assert.Equal(t, 101.0, rc.LastPrice)
	assert.Equal(t, now, rc.LastQuoteAt)
}

func TestRunContext_Pinned(t *testing.T) {
	pinned := t0.Add(3 * time.Minute)
	rc := domain.NewRunContext(t0.Add(10*time.Minute), 15*time.Minute, pinned)
	assert.Equal(t, pinned, rc.ReferenceTime)
	assert.Equal(t, t0.Add(3*time.Minute), rc.ReferenceMinute())
	assert.Equal(t, pinned.Add(15*time.Minute), rc.HorizonEnd)
}

func TestRealizedDirection(t *testing.T) {
	assert.Equal(t, domain.DirectionUp, domain.RealizedDirection(100, 100.01))
	assert.Equal(t, domain.DirectionDown, domain.RealizedDirection(100, 100))
	assert.Equal(t, domain.DirectionDown, domain.RealizedDirection(100, 99))
	assert.Equal(t, domain.DirectionUndetermined, domain.RealizedDirection(0, 99))
}

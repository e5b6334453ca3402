package domain

import (
	"math"
	"time"
)

// Venue identifiers used across adapters, config and the feed.
const (
	VenueBinance  = "binance"
	VenueCoinbase = "coinbase"
)

// NeutralImbalance is the order-book imbalance reported when the book carries no
// usable depth.
const NeutralImbalance = 0.5

const depthEpsilon = 1e-12

// BookTop is the best level of both sides of the book.
// A quote either carries a full BookTop or none at all.
type BookTop struct {
	Bid     float64
	Ask     float64
	BidSize float64
	AskSize float64
}

// Quote is a single live sample published by the feed.
type Quote struct {
	Time       time.Time
	Mid        float64
	Book       *BookTop // nil when the provider only reports a last price
	Venue      string
	Instrument string
	Currency   string
	Source     string // name of the provider that produced the sample
}

// NewBookQuote builds a quote from a two-sided book. Negative sizes are clamped
// to zero; the mid is zero when either side is missing.
func NewBookQuote(bid, ask, bidSize, askSize float64) Quote {
	q := Quote{Book: &BookTop{
		Bid:     bid,
		Ask:     ask,
		BidSize: math.Max(bidSize, 0),
		AskSize: math.Max(askSize, 0),
	}}
	if bid > 0 && ask > 0 {
		q.Mid = (bid + ask) / 2
	}
	return q
}

// Valid reports whether the quote can be published.
func (q Quote) Valid() bool {
	return q.Mid > 0 && !math.IsNaN(q.Mid) && !math.IsInf(q.Mid, 0)
}

// HasTwoSidedBook reports whether both best prices are positive.
func (q Quote) HasTwoSidedBook() bool {
	return q.Book != nil && q.Book.Bid > 0 && q.Book.Ask > 0
}

// WeightedMid returns the size-weighted mid price and the order-book imbalance
// bid/(bid+ask). ok is false when the book has no usable depth, in which case
// callers fall back to the venue mid and a neutral imbalance.
func (q Quote) WeightedMid() (wmp, obi float64, ok bool) {
	if !q.HasTwoSidedBook() {
		return 0, NeutralImbalance, false
	}
	b := q.Book
	depth := b.BidSize + b.AskSize
	if depth <= depthEpsilon {
		return 0, NeutralImbalance, false
	}
	wmp = (b.Bid*b.AskSize + b.Ask*b.BidSize) / depth
	obi = b.BidSize / depth
	if math.IsNaN(wmp) || math.IsInf(wmp, 0) || math.IsNaN(obi) || math.IsInf(obi, 0) || wmp <= 0 {
		return 0, NeutralImbalance, false
	}
	return wmp, obi, true
}

// EffectivePrice returns the price that feeds the displacement calculation:
// the weighted mid when the book is usable, else the venue mid.
func (q Quote) EffectivePrice() (price, obi float64) {
	if wmp, imb, ok := q.WeightedMid(); ok {
		return wmp, imb
	}
	return q.Mid, NeutralImbalance
}

// HalfSpreadRel returns 0.5×(ask−bid)/price. ok is false when the quote has no
// two-sided book or the book is crossed by more than 0.1% of price.
func (q Quote) HalfSpreadRel(price float64) (float64, bool) {
	if !q.HasTwoSidedBook() || price <= 0 {
		return 0, false
	}
	if q.Book.Bid >= q.Book.Ask+price*0.001 {
		return 0, false
	}
	return 0.5 * (q.Book.Ask - q.Book.Bid) / price, true
}

package coinbase

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updown/internal/domain"
)

var errMalformed = errors.New("coinbase: malformed payload")

// level returns the price and size of the first level of a book side.
func level(side []bookLevel) (price, size float64, err error) {
	if len(side) == 0 || len(side[0]) < 2 {
		return 0, 0, fmt.Errorf("%w: empty book side", errMalformed)
	}
	price, err = decimalField(side[0][0])
	if err != nil {
		return 0, 0, err
	}
	size, err = decimalField(side[0][1])
	if err != nil {
		return 0, 0, err
	}
	return price, size, nil
}

func decimalField(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("%w: field %v is not a string", errMalformed, v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: decimal %q", errMalformed, s)
	}
	f, _ := d.Float64()
	return f, nil
}

func mapBook(b book) (domain.Quote, error) {
	bid, bidSize, err := level(b.Bids)
	if err != nil {
		return domain.Quote{}, err
	}
	ask, askSize, err := level(b.Asks)
	if err != nil {
		return domain.Quote{}, err
	}
	if bid <= 0 || ask <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: non-positive best price", errMalformed)
	}
	return domain.NewBookQuote(bid, ask, bidSize, askSize), nil
}

// mapCandle converts one candle row. Rows that are short or carry
// non-numeric fields are rejected.
func mapCandle(row candleRow) (domain.Bar, bool) {
	if len(row) < 5 {
		return domain.Bar{}, false
	}
	var v [5]float64
	for i := range v {
		f, ok := row[i].(float64)
		if !ok {
			return domain.Bar{}, false
		}
		v[i] = f
	}
	return domain.Bar{
		OpenTime: time.Unix(int64(v[0]), 0).UTC(),
		Low:      v[1],
		High:     v[2],
		Open:     v[3],
		Close:    v[4],
	}, true
}

func mapCandles(rows []candleRow) []domain.Bar {
	bars := make([]domain.Bar, 0, len(rows))
	for _, r := range rows {
		if b, ok := mapCandle(r); ok {
			bars = append(bars, b)
		}
	}
	return bars
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

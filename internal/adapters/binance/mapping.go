package binance

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updown/internal/domain"
)

var errMalformed = errors.New("binance: malformed payload")

// parsePrice converts a decimal string into a float64.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q", errMalformed, s)
	}
	f, _ := d.Float64()
	return f, nil
}

// parseSize converts a decimal size string. Sizes are published with both
// prices, so a malformed size fails the whole quote.
func parseSize(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q", errMalformed, s)
	}
	f, _ := d.Float64()
	return f, nil
}

func mapBookTicker(bt bookTicker) (domain.Quote, error) {
	bid, err := parsePrice(bt.BidPrice)
	if err != nil {
		return domain.Quote{}, err
	}
	ask, err := parsePrice(bt.AskPrice)
	if err != nil {
		return domain.Quote{}, err
	}
	bidQty, err := parseSize(bt.BidQty)
	if err != nil {
		return domain.Quote{}, err
	}
	askQty, err := parseSize(bt.AskQty)
	if err != nil {
		return domain.Quote{}, err
	}
	if bid <= 0 || ask <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: empty book side", errMalformed)
	}
	return domain.NewBookQuote(bid, ask, bidQty, askQty), nil
}

func mapStreamTicker(st streamBookTicker) (domain.Quote, error) {
	return mapBookTicker(bookTicker{
		Symbol:   st.Symbol,
		BidPrice: st.Bid,
		BidQty:   st.BidQty,
		AskPrice: st.Ask,
		AskQty:   st.AskQty,
	})
}

// mapKline converts a kline row. ok is false for rows with a bad shape.
func mapKline(row klineRow) (domain.Bar, bool) {
	if len(row) < 5 {
		return domain.Bar{}, false
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return domain.Bar{}, false
	}
	var ohlc [4]float64
	for i := range ohlc {
		s, ok := row[i+1].(string)
		if !ok {
			return domain.Bar{}, false
		}
		v, err := parsePrice(s)
		if err != nil {
			return domain.Bar{}, false
		}
		ohlc[i] = v
	}
	return domain.Bar{
		OpenTime: time.UnixMilli(int64(openMs)).UTC(),
		Open:     ohlc[0],
		High:     ohlc[1],
		Low:      ohlc[2],
		Close:    ohlc[3],
	}, true
}

func mapKlines(rows []klineRow) []domain.Bar {
	bars := make([]domain.Bar, 0, len(rows))
	for _, r := range rows {
		if b, ok := mapKline(r); ok {
			bars = append(bars, b)
		}
	}
	return bars
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

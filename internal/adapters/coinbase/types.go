package coinbase

// Raw Coinbase Exchange DTOs. Book levels mix decimal strings with an integer
// order count; candle rows are plain numbers.

// book is GET /products/{id}/book?level=1.
type book struct {
	Sequence int64       `json:"sequence"`
	Bids     []bookLevel `json:"bids"`
	Asks     []bookLevel `json:"asks"`
}

// bookLevel is [price, size, num_orders].
type bookLevel []any

// candleRow is one row of GET /products/{id}/candles:
// [time, low, high, open, close, volume].
type candleRow []any

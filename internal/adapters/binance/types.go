package binance

// Raw Binance DTOs. Prices and sizes arrive as decimal strings; mapping.go
// converts them to domain values.

// bookTicker is GET /api/v3/ticker/bookTicker.
type bookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// tickerPrice is GET /api/v3/ticker/price.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// aggTrade is one row of GET /api/v3/aggTrades.
type aggTrade struct {
	ID    int64  `json:"a"`
	Price string `json:"p"`
	Qty   string `json:"q"`
	Time  int64  `json:"T"`
}

// streamBookTicker is a <symbol>@bookTicker websocket payload.
type streamBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

// klineRow is one row of GET /api/v3/klines:
// [openTime, open, high, low, close, volume, closeTime, ...].
type klineRow []any

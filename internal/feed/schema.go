package feed

import "TradePull/internal/domain/models"

// Binary frame layout is a fixed contract with the upstream feed. All
// numeric fields are 8-byte little-endian integers; prices are scaled
// by 100 on the wire.
const (
	offMode       = 0
	offExchange   = 1
	offTokenStart = 2
	offTokenEnd   = 27
	offTimestamp  = 27
	offLastPrice  = 43

	priceScale = 100.0
)

// minFrameLen is the minimum frame length per subscription mode.
var minFrameLen = map[int]int{
	models.ModeLTP:       51,
	models.ModeQuote:     187,
	models.ModeSnapQuote: 243,
}

// fieldSpec describes one schema entry: field name, byte offset of its
// 8-byte little-endian value, and whether the value is a scaled price.
type fieldSpec struct {
	name   string
	offset int
	price  bool
	setP   func(q *models.Quote, v float64)
	setQ   func(q *models.Quote, v int64)
}

// quoteFields is the mode 2 section appended after the common header.
var quoteFields = []fieldSpec{
	{name: "last_traded_qty", offset: 51, setQ: func(q *models.Quote, v int64) { q.LastTradedQty = v }},
	{name: "avg_traded_price", offset: 59, price: true, setP: func(q *models.Quote, v float64) { q.AvgTradedPrice = v }},
	{name: "volume_traded", offset: 67, setQ: func(q *models.Quote, v int64) { q.VolumeTraded = v }},
	{name: "total_buy_qty", offset: 75, setQ: func(q *models.Quote, v int64) { q.TotalBuyQty = v }},
	{name: "total_sell_qty", offset: 83, setQ: func(q *models.Quote, v int64) { q.TotalSellQty = v }},
	{name: "open_price", offset: 91, price: true, setP: func(q *models.Quote, v float64) { q.OpenPrice = v }},
	{name: "high_price", offset: 99, price: true, setP: func(q *models.Quote, v float64) { q.HighPrice = v }},
	{name: "low_price", offset: 107, price: true, setP: func(q *models.Quote, v float64) { q.LowPrice = v }},
	{name: "close_price", offset: 115, price: true, setP: func(q *models.Quote, v float64) { q.ClosePrice = v }},
	{name: "yearly_high", offset: 123, price: true, setP: func(q *models.Quote, v float64) { q.YearlyHigh = v }},
	{name: "yearly_low", offset: 131, price: true, setP: func(q *models.Quote, v float64) { q.YearlyLow = v }},
	{name: "best_bid_price", offset: 139, price: true, setP: func(q *models.Quote, v float64) { q.BestBidPrice = v }},
	{name: "best_bid_qty", offset: 147, setQ: func(q *models.Quote, v int64) { q.BestBidQty = v }},
}

// snapQuoteFields is the extra mode 3 section with circuit limits.
var snapQuoteFields = []fieldSpec{
	{name: "upper_circuit", offset: 187, price: true, setP: func(q *models.Quote, v float64) { q.UpperCircuit = v }},
	{name: "lower_circuit", offset: 195, price: true, setP: func(q *models.Quote, v float64) { q.LowerCircuit = v }},
}

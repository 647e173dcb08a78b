package models

import "time"

// Subscription modes supported by the upstream feed.
const (
	ModeLTP       = 1
	ModeQuote     = 2
	ModeSnapQuote = 3
	ModeFullDepth = 4
)

// Exchange type codes used by the upstream feed.
const (
	ExchangeNSECM = 1
	ExchangeNSEFO = 2
	ExchangeBSECM = 3
	ExchangeBSEFO = 4
	ExchangeMCXFO = 5
	ExchangeNCXFO = 7
	ExchangeCDEFO = 13
)

// ExchangeTypes maps exchange names to their feed codes.
var ExchangeTypes = map[string]int{
	"NSE":   ExchangeNSECM,
	"NFO":   ExchangeNSEFO,
	"BSE":   ExchangeBSECM,
	"BFO":   ExchangeBSEFO,
	"MCX":   ExchangeMCXFO,
	"NCDEX": ExchangeNCXFO,
	"CDS":   ExchangeCDEFO,
}

// Tick is one OHLCV sample for a symbol. Immutable once created.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Quote carries the full mode 2/3 payload of a decoded frame. Only the
// fields present for the frame's mode are populated.
type Quote struct {
	LastPrice      float64
	LastTradedQty  int64
	AvgTradedPrice float64
	VolumeTraded   int64
	TotalBuyQty    int64
	TotalSellQty   int64
	OpenPrice      float64
	HighPrice      float64
	LowPrice       float64
	ClosePrice     float64
	YearlyHigh     float64
	YearlyLow      float64
	BestBidPrice   float64
	BestBidQty     int64
	UpperCircuit   float64
	LowerCircuit   float64
}

// Candle is an OHLCV bar aggregated over a fixed time bucket.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

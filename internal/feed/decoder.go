package feed

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"TradePull/internal/domain/models"
)

// Frame is one decoded market-data frame.
type Frame struct {
	Mode         int
	ExchangeType int
	Token        string
	Timestamp    time.Time
	Quote        models.Quote
}

// Tick converts the frame to an OHLCV tick. Mode 1 frames carry only the
// last traded price, so all four prices collapse to it.
func (f *Frame) Tick() models.Tick {
	if f.Mode == models.ModeLTP {
		return models.Tick{
			Timestamp: f.Timestamp,
			Open:      f.Quote.LastPrice,
			High:      f.Quote.LastPrice,
			Low:       f.Quote.LastPrice,
			Close:     f.Quote.LastPrice,
		}
	}
	return models.Tick{
		Timestamp: f.Timestamp,
		Open:      f.Quote.OpenPrice,
		High:      f.Quote.HighPrice,
		Low:       f.Quote.LowPrice,
		Close:     f.Quote.LastPrice,
		Volume:    f.Quote.VolumeTraded,
	}
}

// Decoder turns raw feed payloads into frames. It is stateless and safe
// for concurrent use.
type Decoder struct{}

func NewDecoder() *Decoder { return &Decoder{} }

// Decode parses one binary frame. Truncated or malformed frames return
// models.ErrDecode; full-depth frames return models.ErrUnsupportedMode.
// Callers log and discard failed frames, they never propagate.
func (d *Decoder) Decode(data []byte) (*Frame, error) {
	if len(data) < minFrameLen[models.ModeLTP] {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", models.ErrDecode, len(data))
	}

	mode := int(data[offMode])
	if mode == models.ModeFullDepth {
		return nil, models.ErrUnsupportedMode
	}
	minLen, ok := minFrameLen[mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %d", models.ErrDecode, mode)
	}
	if len(data) < minLen {
		return nil, fmt.Errorf("%w: mode %d needs %d bytes, got %d", models.ErrDecode, mode, minLen, len(data))
	}

	f := &Frame{
		Mode:         mode,
		ExchangeType: int(data[offExchange]),
		Token:        decodeToken(data[offTokenStart:offTokenEnd]),
	}
	if f.Token == "" {
		return nil, fmt.Errorf("%w: empty instrument token", models.ErrDecode)
	}

	// The exchange timestamp is trusted only when set; otherwise the
	// receive time stands in.
	if ts := readInt64(data, offTimestamp); ts > 0 {
		f.Timestamp = time.Unix(ts, 0)
	} else {
		f.Timestamp = time.Now()
	}

	f.Quote.LastPrice = float64(readInt64(data, offLastPrice)) / priceScale

	if mode >= models.ModeQuote {
		applyFields(&f.Quote, data, quoteFields)
	}
	if mode >= models.ModeSnapQuote {
		applyFields(&f.Quote, data, snapQuoteFields)
	}
	return f, nil
}

// textTick is the shape of a textual tick update.
type textTick struct {
	Token    string   `json:"token"`
	Exchange string   `json:"exchange"`
	Time     int64    `json:"time"`
	Open     *float64 `json:"o"`
	High     *float64 `json:"h"`
	Low      *float64 `json:"l"`
	Close    *float64 `json:"c"`
	Volume   int64    `json:"v"`
}

// DecodeText parses one textual tick update. All four prices are
// required; absence is a discard, same as a short binary frame.
func (d *Decoder) DecodeText(data []byte) (token string, tick models.Tick, err error) {
	var t textTick
	if err := json.Unmarshal(data, &t); err != nil {
		return "", models.Tick{}, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	if t.Token == "" {
		return "", models.Tick{}, fmt.Errorf("%w: missing token", models.ErrDecode)
	}
	if t.Open == nil || t.High == nil || t.Low == nil || t.Close == nil {
		return "", models.Tick{}, fmt.Errorf("%w: missing ohlc fields", models.ErrDecode)
	}

	tick = models.Tick{
		Open:   *t.Open,
		High:   *t.High,
		Low:    *t.Low,
		Close:  *t.Close,
		Volume: t.Volume,
	}
	if t.Time > 0 {
		tick.Timestamp = time.Unix(t.Time, 0)
	} else {
		tick.Timestamp = time.Now()
	}
	return t.Token, tick, nil
}

func applyFields(q *models.Quote, data []byte, fields []fieldSpec) {
	for _, fs := range fields {
		raw := readInt64(data, fs.offset)
		if fs.price {
			fs.setP(q, float64(raw)/priceScale)
		} else {
			fs.setQ(q, raw)
		}
	}
}

func decodeToken(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func readInt64(data []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(data[off : off+8]))
}

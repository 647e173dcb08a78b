package runtime

import (
	"sort"
	"time"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
)

// Resample aggregates ticks into fixed-width OHLCV bars at the given
// timeframe. The last traded price of each tick drives open/high/low/
// close; volumes are summed. Output is ordered by bucket ascending.
func Resample(symbol string, ticks []models.Tick, tf repository.Timeframe) []models.Candle {
	if len(ticks) == 0 {
		return nil
	}

	width := tf.Duration()
	byBucket := make(map[time.Time]*models.Candle)
	for _, t := range ticks {
		bucket := t.Timestamp.Truncate(width)
		c, ok := byBucket[bucket]
		if !ok {
			byBucket[bucket] = &models.Candle{
				Bucket: bucket,
				Symbol: symbol,
				Open:   t.Close,
				High:   t.Close,
				Low:    t.Close,
				Close:  t.Close,
				Volume: float64(t.Volume),
			}
			continue
		}
		if t.Close > c.High {
			c.High = t.Close
		}
		if t.Close < c.Low {
			c.Low = t.Close
		}
		c.Close = t.Close
		c.Volume += float64(t.Volume)
	}

	out := make([]models.Candle, 0, len(byBucket))
	for _, c := range byBucket {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out
}

// MergeCandles folds incoming bars into the rolling window, de-duplicated
// by bucket with last write winning, kept time-ordered, and trimmed to
// maxSize by dropping the oldest.
func MergeCandles(window, incoming []models.Candle, maxSize int) []models.Candle {
	if len(incoming) == 0 {
		return window
	}

	byBucket := make(map[int64]models.Candle, len(window)+len(incoming))
	for _, c := range window {
		byBucket[c.Bucket.UnixNano()] = c
	}
	for _, c := range incoming {
		byBucket[c.Bucket.UnixNano()] = c
	}

	out := make([]models.Candle, 0, len(byBucket))
	for _, c := range byBucket {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })

	if maxSize > 0 && len(out) > maxSize {
		out = out[len(out)-maxSize:]
	}
	return out
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradePull/internal/domain/models"
	domrepo "TradePull/internal/domain/repository"
	pkgch "TradePull/pkg/clickhouse"
	applogger "TradePull/pkg/logger"
)

// CHHistory serves the historical-bar fallback from ClickHouse candle
// tables. One table per resolution; coarser timeframes fold to the
// finest table that covers them.
type CHHistory struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.HistoryProvider = (*CHHistory)(nil)

func NewCHHistory(ch *pkgch.Client) *CHHistory {
	return &CHHistory{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHHistory) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHHistory) Fetch(ctx context.Context, symbol, exchange string, tf domrepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForTF(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND exchange = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, exchange, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse history scan error",
					applogger.String("table", table),
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse history ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return "tradepull.candles_1s", nil
	case domrepo.TF1m, domrepo.TF5m, domrepo.TF15m:
		// 5m/15m fold to 1m; the runtime resamples in-memory.
		return "tradepull.candles_1m", nil
	case domrepo.TF1h, domrepo.TF1d:
		return "tradepull.candles_1h", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"papertrader/internal/model"
)

// ReadCandles returns archived candles for symbol with TS after from,
// ordered by timestamp ascending for correct replay order.
func (a *Archive) ReadCandles(symbol string, from time.Time) ([]model.Candle, error) {
	rows, err := a.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, from.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsMilli int64
		if err := rows.Scan(&tsMilli, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.UnixMilli(tsMilli).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LastTimestamp returns the newest archived bar time for symbol.
// Returns the zero time if nothing is archived.
func (a *Archive) LastTimestamp(symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := a.db.QueryRow(`SELECT MAX(ts) FROM candles WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), nil
}

// Symbols lists every symbol with archived candles.
func (a *Archive) Symbols() ([]string, error) {
	rows, err := a.db.Query(`SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

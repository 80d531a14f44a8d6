// Package replay feeds recorded candles back through a consumer at a
// configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"papertrader/internal/model"
)

// Reader loads recorded candles for a symbol with TS after from.
type Reader interface {
	ReadCandles(symbol string, from time.Time) ([]model.Candle, error)
}

// EmitFunc receives each replayed candle. Returning an error stops the replay.
type EmitFunc func(ctx context.Context, c model.Candle) error

// Stats summarizes a replay run.
type Stats struct {
	Loaded  int
	Emitted int
	Failed  int
}

// Replayer replays candles at a speed multiplier.
type Replayer struct {
	reader Reader

	// MaxGap caps the scaled sleep between two candles.
	MaxGap time.Duration

	// ContinueOnError keeps replaying when emit fails, counting the failure.
	ContinueOnError bool
}

// New creates a Replayer backed by reader. reader may be nil when only
// RunCandles is used.
func New(reader Reader) *Replayer {
	return &Replayer{reader: reader, MaxGap: 5 * time.Second}
}

// Run loads candles for symbol recorded after from and replays them.
func (r *Replayer) Run(ctx context.Context, symbol string, from time.Time, speed float64, emit EmitFunc) (Stats, error) {
	candles, err := r.reader.ReadCandles(symbol, from)
	if err != nil {
		return Stats{}, err
	}
	if len(candles) == 0 {
		log.Printf("[replay] no candles found for %s", symbol)
		return Stats{}, nil
	}
	return r.RunCandles(ctx, candles, speed, emit)
}

// RunCandles replays candles in timestamp order. speed controls the playback
// rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) RunCandles(ctx context.Context, candles []model.Candle, speed float64, emit EmitFunc) (Stats, error) {
	sorted := make([]model.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })

	stats := Stats{Loaded: len(sorted)}
	log.Printf("[replay] loaded %d candles, speed=%.1fx", len(sorted), speed)

	var prevTS time.Time
	for _, c := range sorted {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", stats.Emitted)
			return stats, ctx.Err()
		default:
		}

		if speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if r.MaxGap > 0 && scaled > r.MaxGap {
					scaled = r.MaxGap
				}
				select {
				case <-ctx.Done():
					return stats, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = c.TS

		if err := emit(ctx, c); err != nil {
			stats.Failed++
			if !r.ContinueOnError {
				return stats, err
			}
			log.Printf("[replay] emit failed at %s: %v", c.TS.Format(time.RFC3339), err)
			continue
		}
		stats.Emitted++
	}

	log.Printf("[replay] completed: %d candles replayed, %d failed", stats.Emitted, stats.Failed)
	return stats, nil
}

package indicator

import "papertrader/internal/model"

// Series replays a fresh indicator over candles and returns one reading per
// index. Fewer than two candles yields an all-unavailable series.
func Series(ind Indicator, candles []model.Candle) []model.Optional {
	out := make([]model.Optional, len(candles))
	if len(candles) < 2 {
		return out
	}
	ind.Reset()
	for i, c := range candles {
		ind.Update(c)
		out[i] = Reading(ind)
	}
	return out
}

// SMASeries returns SMA(period) aligned to candles.
func SMASeries(candles []model.Candle, period int) []model.Optional {
	return Series(NewSMA(period), candles)
}

// RSISeries returns RSI(period) aligned to candles.
func RSISeries(candles []model.Candle, period int) []model.Optional {
	return Series(NewRSI(period), candles)
}

// ATRSeries returns ATR(period) aligned to candles.
func ATRSeries(candles []model.Candle, period int) []model.Optional {
	return Series(NewATR(period), candles)
}

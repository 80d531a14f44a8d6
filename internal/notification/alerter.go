package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/metrics"
	"papertrader/internal/model"
)

// TradeAlerter turns session updates that carry a trade into alerts.
type TradeAlerter struct {
	notifiers []Notifier
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// NewTradeAlerter creates an alerter. m may be nil.
func NewTradeAlerter(m *metrics.Metrics, notifiers ...Notifier) *TradeAlerter {
	return &TradeAlerter{notifiers: notifiers, metrics: m, timeout: 10 * time.Second}
}

// Run alerts on every trade-carrying update from ch until ctx is cancelled
// or ch is closed.
func (a *TradeAlerter) Run(ctx context.Context, ch <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if u.Trade == nil {
				continue
			}
			a.Notify(ctx, FormatTrade(u.Symbol, *u.Trade))
		}
	}
}

// Notify sends alert to every backend. Failures are logged and counted.
func (a *TradeAlerter) Notify(ctx context.Context, alert Alert) {
	for _, n := range a.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
		err := n.Send(sendCtx, alert)
		cancel()
		a.metrics.IncAlert(n.Name(), err)
		if err != nil {
			log.Printf("[alert] %s delivery failed: %v", n.Name(), err)
		}
	}
}

// FormatTrade renders a trade as an alert. Prices and capital are rounded
// to 2 decimals and sizes to 6.
func FormatTrade(symbol string, t model.Trade) Alert {
	price := decimal.NewFromFloat(t.Price)
	capital := decimal.NewFromFloat(t.CapitalAfter)

	var detail string
	switch t.Action {
	case model.ActionBuy:
		detail = fmt.Sprintf("Opened long %s @ %s", sizeString(t.LongSizeAfter), price.StringFixed(2))
	case model.ActionShort:
		detail = fmt.Sprintf("Opened short %s @ %s", sizeString(t.ShortSizeAfter), price.StringFixed(2))
	case model.ActionSell:
		detail = fmt.Sprintf("Closed long @ %s, capital %s", price.StringFixed(2), capital.StringFixed(2))
	case model.ActionCover:
		detail = fmt.Sprintf("Covered short @ %s, capital %s", price.StringFixed(2), capital.StringFixed(2))
	default:
		detail = fmt.Sprintf("%s @ %s", t.Action, price.StringFixed(2))
	}

	level := AlertInfo
	if (t.Action == model.ActionSell || t.Action == model.ActionCover) && capital.IsZero() {
		level = AlertCritical
	}

	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s", t.Action, symbol),
		Message: fmt.Sprintf("%s (%s)", detail, t.TS.UTC().Format(time.RFC3339)),
	}
}

func sizeString(size float64) string {
	return decimal.NewFromFloat(size).Round(6).String()
}

package execution

import (
	"math"
	"testing"
	"time"

	"papertrader/internal/model"
)

var ts = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func TestLedger_FlatBuy(t *testing.T) {
	l := NewLedger(1000)
	tr, ok := l.Apply(model.ActionBuy, 100, ts)
	if !ok {
		t.Fatal("expected a trade")
	}
	if tr.Action != model.ActionBuy || tr.CapitalAfter != 0 || tr.LongSizeAfter != 10 || tr.ShortSizeAfter != 0 {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if l.Capital() != 0 {
		t.Errorf("expected capital 0, got %v", l.Capital())
	}
	if p := l.Position(); p.Side != model.Long || p.Size != 10 || p.EntryPrice != 100 {
		t.Errorf("unexpected position %+v", p)
	}
}

func TestLedger_LongSell(t *testing.T) {
	l := NewLedger(1000)
	l.Apply(model.ActionBuy, 100, ts)
	tr, ok := l.Apply(model.ActionSell, 110, ts.Add(time.Minute))
	if !ok {
		t.Fatal("expected a trade")
	}
	if tr.Action != model.ActionSell || tr.CapitalAfter != 1100 || tr.LongSizeAfter != 0 {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if l.Position().Side != model.Flat {
		t.Errorf("expected flat, got %s", l.Position().Side)
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 trades, got %d", l.Len())
	}
}

func TestLedger_FlatSellOpensShort(t *testing.T) {
	l := NewLedger(1000)
	tr, ok := l.Apply(model.ActionSell, 100, ts)
	if !ok {
		t.Fatal("expected a trade")
	}
	if tr.Action != model.ActionShort || tr.ShortSizeAfter != 10 || tr.LongSizeAfter != 0 || tr.CapitalAfter != 0 {
		t.Fatalf("unexpected trade %+v", tr)
	}
}

func TestLedger_ShortCover(t *testing.T) {
	cases := []struct {
		coverAt float64
		want    float64
	}{
		{90, 1100},  // profit: 10·(200−90)
		{100, 1000}, // flat
		{120, 800},  // loss
		{200, 0},    // wiped out
		{250, 0},    // floored
	}
	for _, tc := range cases {
		l := NewLedger(1000)
		l.Apply(model.ActionSell, 100, ts)
		tr, ok := l.Apply(model.ActionBuy, tc.coverAt, ts)
		if !ok || tr.Action != model.ActionCover {
			t.Fatalf("cover at %v: expected Cover, got %+v ok=%v", tc.coverAt, tr, ok)
		}
		if math.Abs(l.Capital()-tc.want) > 1e-9 {
			t.Errorf("cover at %v: expected capital %v, got %v", tc.coverAt, tc.want, l.Capital())
		}
		if l.Capital() < 0 {
			t.Errorf("cover at %v: capital negative", tc.coverAt)
		}
		if l.Position().Side != model.Flat || tr.ShortSizeAfter != 0 {
			t.Errorf("cover at %v: expected flat", tc.coverAt)
		}
	}
}

func TestLedger_NoOps(t *testing.T) {
	cases := []struct {
		name  string
		setup func(l *Ledger)
		act   model.Action
		price float64
	}{
		{"long buy", func(l *Ledger) { l.Apply(model.ActionBuy, 100, ts) }, model.ActionBuy, 105},
		{"short sell", func(l *Ledger) { l.Apply(model.ActionSell, 100, ts) }, model.ActionSell, 95},
		{"none signal", func(l *Ledger) {}, model.ActionNone, 100},
		{"zero price", func(l *Ledger) {}, model.ActionBuy, 0},
		{"negative price", func(l *Ledger) {}, model.ActionSell, -5},
		{"nan price", func(l *Ledger) {}, model.ActionBuy, math.NaN()},
		{"short action as signal", func(l *Ledger) {}, model.ActionShort, 100},
	}
	for _, tc := range cases {
		l := NewLedger(1000)
		tc.setup(l)
		before := l.Len()
		capBefore, posBefore := l.Capital(), l.Position()

		if _, ok := l.Apply(tc.act, tc.price, ts); ok {
			t.Errorf("%s: expected no-op", tc.name)
		}
		if l.Len() != before || l.Capital() != capBefore || l.Position() != posBefore {
			t.Errorf("%s: state changed on no-op", tc.name)
		}
	}
}

func TestLedger_ZeroCapitalFlatIsNoOp(t *testing.T) {
	l := NewLedger(1000)
	l.Apply(model.ActionSell, 100, ts)
	l.Apply(model.ActionBuy, 300, ts) // cover wipes capital to 0

	if _, ok := l.Apply(model.ActionBuy, 100, ts); ok {
		t.Fatal("flat with zero capital should not open a position")
	}
	if _, ok := l.Apply(model.ActionSell, 100, ts); ok {
		t.Fatal("flat with zero capital should not open a short")
	}
}

func TestLedger_Invariants(t *testing.T) {
	l := NewLedger(1000)
	actions := []model.Action{
		model.ActionBuy, model.ActionBuy, model.ActionSell, model.ActionSell,
		model.ActionSell, model.ActionBuy, model.ActionNone, model.ActionBuy,
		model.ActionSell, model.ActionSell, model.ActionBuy,
	}
	prices := []float64{100, 101, 103, 99, 98, 95, 96, 97, 99, 98, 94}

	for i, a := range actions {
		l.Apply(a, prices[i], ts.Add(time.Duration(i)*time.Minute))

		p := l.Position()
		if p.LongSize() > 0 && p.ShortSize() > 0 {
			t.Fatalf("step %d: both long and short open", i)
		}
		if p.Side != model.Flat && l.Capital() != 0 {
			t.Fatalf("step %d: capital %v while position open", i, l.Capital())
		}
		if p.Side == model.Flat && (l.Capital() < 0 || p.Size != 0) {
			t.Fatalf("step %d: bad flat state capital=%v size=%v", i, l.Capital(), p.Size)
		}
	}

	// Trades alternate open/close.
	trades := l.Trades()
	for i, tr := range trades {
		opening := tr.Action == model.ActionBuy || tr.Action == model.ActionShort
		if opening != (i%2 == 0) {
			t.Errorf("trade %d (%s) breaks open/close alternation", i, tr.Action)
		}
	}
}

func TestLedger_TradesIsCopy(t *testing.T) {
	l := NewLedger(1000)
	l.Apply(model.ActionBuy, 100, ts)
	got := l.Trades()
	got[0].Price = -1
	if l.Trades()[0].Price != 100 {
		t.Fatal("Trades() returned internal slice")
	}
}

func TestLedger_Equity(t *testing.T) {
	l := NewLedger(1000)
	if l.Equity(50) != 1000 {
		t.Errorf("flat equity should be capital")
	}
	l.Apply(model.ActionBuy, 100, ts)
	if l.Equity(120) != 1200 {
		t.Errorf("long equity: got %v, want 1200", l.Equity(120))
	}
}

func TestLedger_Reset(t *testing.T) {
	l := NewLedger(1000)
	l.Apply(model.ActionBuy, 100, ts)
	l.Reset(500)
	if l.Capital() != 500 || l.Position().Side != model.Flat || l.Len() != 0 {
		t.Fatalf("unexpected state after reset: capital=%v pos=%+v trades=%d", l.Capital(), l.Position(), l.Len())
	}
}

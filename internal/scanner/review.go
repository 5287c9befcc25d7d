package scanner

import (
	"sort"
	"time"

	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
)

// fill is one order's fills collapsed into a single average-priced entry,
// the unit the pairing step below operates on.
type fill struct {
	Symbol string
	Side   string
	Price  float64
	Qty    float64
	Time   time.Time
}

// collapseByOrder groups raw trade fills by symbol+orderID and averages
// price across the group, weighted by quantity.
func collapseByOrder(trades []exchange.Trade) []fill {
	type key struct {
		symbol  string
		orderID int64
	}
	groups := map[key]*fill{}
	var order []key

	for _, t := range trades {
		k := key{t.Symbol, t.OrderID}
		f, ok := groups[k]
		if !ok {
			f = &fill{Symbol: t.Symbol, Side: t.Side, Time: t.Time}
			groups[k] = f
			order = append(order, k)
		}
		notional := f.Price*f.Qty + t.Price*t.Qty
		f.Qty += t.Qty
		if f.Qty > 0 {
			f.Price = notional / f.Qty
		}
		if t.Time.Before(f.Time) {
			f.Time = t.Time
		}
	}

	out := make([]fill, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}

// buildClosedTrades reconstructs round-trip trades from raw fills: fills
// are grouped by order, sorted per-symbol by time, and consecutive
// opposite-side fills are paired as entry/exit. A fill left without an
// opposite partner (open position, or an odd fill out) is dropped.
func buildClosedTrades(trades []exchange.Trade) []domain.ClosedTrade {
	fills := collapseByOrder(trades)

	bySymbol := map[string][]fill{}
	for _, f := range fills {
		bySymbol[f.Symbol] = append(bySymbol[f.Symbol], f)
	}

	var out []domain.ClosedTrade
	for symbol, list := range bySymbol {
		sort.Slice(list, func(i, j int) bool { return list[i].Time.Before(list[j].Time) })

		i := 0
		for i+1 < len(list) {
			entry, exit := list[i], list[i+1]
			if entry.Side == exit.Side {
				i++
				continue
			}

			qty := entry.Qty
			if exit.Qty < qty {
				qty = exit.Qty
			}
			pnl := (exit.Price - entry.Price) * qty
			if entry.Side == "SELL" {
				pnl = -pnl
			}
			pnlPct := 0.0
			if entry.Price != 0 {
				pnlPct = pnl / (entry.Price * qty) * 100
			}

			out = append(out, domain.ClosedTrade{
				Symbol:     symbol,
				EntryPrice: entry.Price,
				ExitPrice:  exit.Price,
				Quantity:   qty,
				Side:       entry.Side,
				OpenedAt:   entry.Time,
				ClosedAt:   exit.Time,
				Duration:   exit.Time.Sub(entry.Time),
				PnL:        pnl,
				PnLPercent: pnlPct,
			})
			i += 2
		}
	}
	return out
}

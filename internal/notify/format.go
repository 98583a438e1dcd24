package notify

import (
	"fmt"
	"strings"
	"trade_guard/internal/models"
)

func FormatPositions(positions []*models.Position) string {
	if len(positions) == 0 {
		return "📭 Открытых позиций нет"
	}
	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "- %s [%s] qty=%.4f @ %.4f stop=%.4f last=%.4f pnl=%.4f\n",
			p.Symbol, strings.ToUpper(string(p.Direction)), p.Quantity, p.EntryPrice,
			p.CurrentStopPrice, p.LastPrice, p.FloatingPnL)
	}
	return b.String()
}

func FormatOrders(orders []*models.ConditionalOrder) string {
	if len(orders) == 0 {
		return "📭 Ожидающих ордеров нет"
	}
	var b strings.Builder
	b.WriteString("⏳ Условные ордера:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "- %s %s %s @ %.4f qty=%.4f", o.Symbol, o.Condition,
			strings.ToUpper(string(o.Direction)), o.TriggerPrice, o.Quantity)
		if o.StopLossPrice != nil {
			fmt.Fprintf(&b, " SL=%.4f", *o.StopLossPrice)
		}
		b.WriteString("\n")
	}
	return b.String()
}

package notify

import (
	"fmt"
	"strings"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// FormatTrade renders a trade into a title and message for operator alerts.
func FormatTrade(trade domain.Trade) (title, message string) {
	verb := "Bought"
	if trade.Action == domain.ActionSell {
		verb = "Sold"
	}
	title = fmt.Sprintf("%s %s", verb, trade.TokenID)

	var b strings.Builder
	fmt.Fprintf(&b, "Quantity: %.6f @ %.6f\n", trade.Quantity, trade.Price)
	if trade.Action == domain.ActionBuy {
		fmt.Fprintf(&b, "Cost: %.2f\n", trade.TotalCost)
	} else {
		fmt.Fprintf(&b, "Proceeds: %.2f\n", trade.TotalProceeds)
	}
	if trade.PnL != nil {
		fmt.Fprintf(&b, "PnL: %+.2f", *trade.PnL)
		if trade.PnLPct != nil {
			fmt.Fprintf(&b, " (%+.2f%%)", *trade.PnLPct*100)
		}
		b.WriteString("\n")
	}
	if trade.Trigger != domain.TriggerSignal {
		fmt.Fprintf(&b, "Trigger: %s\n", trade.Trigger)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// FormatCycleSummary renders one execution cycle's outcome.
func FormatCycleSummary(evaluated, executed, skipped int, riskExits int) (title, message string) {
	title = "Trading cycle complete"
	message = fmt.Sprintf(
		"Signals evaluated: %d\nTrades executed: %d\nSkipped: %d\nRisk exits: %d",
		evaluated, executed, skipped, riskExits,
	)
	return title, message
}

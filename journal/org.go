package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders an entry as an Org-mode autopsy block. Structured
// facts live in the PROPERTIES drawer; the headings below are left for the
// trader's own review.
func FormatTradeOrg(t Trade) string {
	heading := fmt.Sprintf("** %s %s %s (%s)", t.Status, t.Side, t.Ticker, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":TICKER: %s\n", t.Ticker)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %s\n", t.Quantity)
	fmt.Fprintf(&b, ":PRICE: %s\n", t.Price.StringFixed(2))
	fmt.Fprintf(&b, ":TIME: %s\n", t.Timestamp.UTC().Format(time.RFC3339))
	if t.PnL.Valid {
		fmt.Fprintf(&b, ":PNL: %s\n", t.PnL.Decimal.StringFixed(2))
	}
	if t.BlockReason != "" {
		fmt.Fprintf(&b, ":BLOCK_REASON: %s\n", t.BlockReason)
	}
	if t.OverrideUsed {
		b.WriteString(":OVERRIDE: yes\n")
	}
	if t.Ref != "" {
		fmt.Fprintf(&b, ":REF: %s\n", t.Ref)
	}
	if t.Emotion != "" {
		fmt.Fprintf(&b, ":EMOTION: %s\n", t.Emotion)
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	fmt.Fprintf(&b, "*** Emotion\n- %s\n\n", t.Emotion)
	fmt.Fprintf(&b, "*** Lessons\n- %s\n", orgLine(t.Lessons))

	return b.String()
}

// FormatTradesOrg renders multiple entries separated by blank lines.
func FormatTradesOrg(trades []Trade) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// orgLine keeps free text inside a single list item.
func orgLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}

package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "timestamp", "ticker", "side", "quantity", "price",
	"status", "pnl", "block_reason", "override_used", "ref",
	"emotion", "lessons",
}

// WriteCSV exports trades, one row each, in the order given.
func WriteCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, t := range trades {
		pnl := ""
		if t.PnL.Valid {
			pnl = t.PnL.Decimal.StringFixed(2)
		}
		if err := cw.Write([]string{
			t.ID,
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Ticker,
			string(t.Side),
			t.Quantity.String(),
			t.Price.String(),
			string(t.Status),
			pnl,
			t.BlockReason,
			strconv.FormatBool(t.OverrideUsed),
			t.Ref,
			string(t.Emotion),
			t.Lessons,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrTradeNotFound = errors.New("trade not found")

// GetTrade returns a single entry by id.
func (j *SQLite) GetTrade(id string) (Trade, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, fmt.Errorf("%w: %q", ErrTradeNotFound, id)
	}
	if err != nil {
		return Trade{}, err
	}
	return t, nil
}

// ListBetween returns entries with start <= timestamp < end, oldest first.
func (j *SQLite) ListBetween(start, end time.Time) ([]Trade, error) {
	return j.query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, rowid ASC`, start.UTC(), end.UTC())
}

// Corrections lists the entries that adjust trade id.
func (j *SQLite) Corrections(id string) ([]Trade, error) {
	return j.query(`SELECT `+tradeColumns+` FROM trades WHERE ref = ? ORDER BY rowid ASC`, id)
}

// DayBounds returns [start, end) of the calendar day named by day
// (YYYY-MM-DD) in loc.
func DayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}

package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='trades'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "trades", name)
}

func TestSQLiteInsertIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	tr := filled("T1", day, "-12.5")
	ok, err := j.Insert(tr)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = j.Insert(tr)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := j.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	tr := filled("T1", day, "-12.50")
	tr.IntentID = "I1"
	tr.OverrideUsed = true
	tr.Quantity = decimal.RequireFromString("12.345")
	_, err := j.Insert(tr)
	require.NoError(t, err)

	blocked := filled("B1", day.Add(time.Minute), "")
	blocked.Status = Blocked
	blocked.BlockReason = "LATE_NIGHT_RESTRICTED"
	_, err = j.Insert(blocked)
	require.NoError(t, err)

	got, err := j.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, "I1", got.IntentID)
	assert.True(t, got.OverrideUsed)
	assert.Equal(t, "12.345", got.Quantity.String())
	require.True(t, got.PnL.Valid)
	assert.True(t, decimal.RequireFromString("-12.5").Equal(got.PnL.Decimal))
	assert.True(t, day.Equal(got.Timestamp))

	gotBlocked, err := j.GetTrade("B1")
	require.NoError(t, err)
	assert.False(t, gotBlocked.PnL.Valid)
	assert.Equal(t, Blocked, gotBlocked.Status)
	assert.Equal(t, "LATE_NIGHT_RESTRICTED", gotBlocked.BlockReason)

	_, err = j.GetTrade("missing")
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestSQLiteListBetweenAndCorrections(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	_, _ = j.Insert(filled("T1", day, ""))
	_, _ = j.Insert(filled("T2", day.Add(25*time.Hour), ""))
	fix := filled("C1", day.Add(time.Hour), "40")
	fix.Ref = "T1"
	fix.Quantity = decimal.Zero
	_, _ = j.Insert(fix)

	start, end, err := DayBounds(time.UTC, "2026-03-09")
	require.NoError(t, err)
	got, err := j.ListBetween(start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].ID)
	assert.Equal(t, "C1", got[1].ID)

	corr, err := j.Corrections("T1")
	require.NoError(t, err)
	require.Len(t, corr, 1)
	assert.Equal(t, "C1", corr[0].ID)
}

func TestOpenReplaysStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := NewSQLite(path)
	require.NoError(t, err)
	l, err := Open(store, time.UTC)
	require.NoError(t, err)
	_, err = l.Append(filled("T1", day, "-100"))
	require.NoError(t, err)
	_, err = l.Append(filled("T2", day, "-25"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	store, err = NewSQLite(path)
	require.NoError(t, err)
	l, err = Open(store, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "-125", l.DailyPnL(day).String())
	assert.Equal(t, "T2", l.RecentOutcomes(1)[0].ID)

	ok, err := l.Append(filled("T1", day, "-100"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := DayBounds(time.UTC, "2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = DayBounds(time.UTC, "09/03/2026")
	assert.Error(t, err)
}

func TestSQLiteRoundTripsAnnotation(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	note := filled("N1", day, "")
	note.Ref = "T1"
	note.Quantity = decimal.Zero
	note.Emotion = Fear
	note.Lessons = "sized down after the gap"
	_, err := j.Insert(note)
	require.NoError(t, err)

	got, err := j.GetTrade("N1")
	require.NoError(t, err)
	assert.Equal(t, Fear, got.Emotion)
	assert.Equal(t, "sized down after the gap", got.Lessons)
	assert.True(t, got.IsAnnotation())
	assert.False(t, got.HasPnL())
}

func TestSQLiteMigratesOlderSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE trades (
		id TEXT PRIMARY KEY,
		intent_id TEXT NOT NULL DEFAULT '',
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		status TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		pnl TEXT,
		block_reason TEXT NOT NULL DEFAULT '',
		override_used INTEGER NOT NULL DEFAULT 0,
		ref TEXT NOT NULL DEFAULT ''
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO trades (id, ticker, side, quantity, price, status, timestamp, pnl)
		VALUES ('OLD', 'NVDA', 'BUY', '1', '100', 'FILLED', ?, '-5')`, day)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	got, err := j.GetTrade("OLD")
	require.NoError(t, err)
	assert.Equal(t, Emotion(""), got.Emotion)
	assert.True(t, got.IsLoss())

	note := filled("N1", day, "")
	note.Ref = "OLD"
	note.Emotion = Greed
	_, err = j.Insert(note)
	require.NoError(t, err)
}

package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

// SQLite is the durable ledger Store.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the ledger database at path. ":memory:" gives
// a throwaway database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// A single connection keeps :memory: databases alive and writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('trades')`)
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range addedColumns {
		if have[c.name] {
			continue
		}
		if _, err := db.Exec(c.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}
	return nil
}

// DB exposes the handle so other stores can share the file.
func (j *SQLite) DB() *sql.DB {
	return j.db
}

func (j *SQLite) Insert(t Trade) (bool, error) {
	var pnl any
	if t.PnL.Valid {
		pnl = t.PnL.Decimal.String()
	}

	res, err := j.db.Exec(`
		INSERT OR IGNORE INTO trades
		(`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.IntentID, t.Ticker, string(t.Side), t.Quantity.String(), t.Price.String(),
		string(t.Status), t.Timestamp.UTC(), pnl, t.BlockReason, t.OverrideUsed, t.Ref,
		string(t.Emotion), t.Lessons,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (j *SQLite) All() ([]Trade, error) {
	return j.query(`SELECT ` + tradeColumns + ` FROM trades ORDER BY rowid ASC`)
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

const tradeColumns = `id, intent_id, ticker, side, quantity, price, status, timestamp, pnl, block_reason, override_used, ref, emotion, lessons`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (Trade, error) {
	var (
		t        Trade
		side     string
		status   string
		emotion  string
		quantity string
		price    string
		pnl      sql.NullString
	)
	if err := r.Scan(
		&t.ID,
		&t.IntentID,
		&t.Ticker,
		&side,
		&quantity,
		&price,
		&status,
		&t.Timestamp,
		&pnl,
		&t.BlockReason,
		&t.OverrideUsed,
		&t.Ref,
		&emotion,
		&t.Lessons,
	); err != nil {
		return Trade{}, err
	}

	var err error
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return Trade{}, fmt.Errorf("trade %s quantity: %w", t.ID, err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return Trade{}, fmt.Errorf("trade %s price: %w", t.ID, err)
	}
	if pnl.Valid {
		d, err := decimal.NewFromString(pnl.String)
		if err != nil {
			return Trade{}, fmt.Errorf("trade %s pnl: %w", t.ID, err)
		}
		t.PnL = decimal.NewNullDecimal(d)
	}
	t.Side = market.Side(side)
	t.Status = Status(status)
	t.Emotion = Emotion(emotion)
	return t, nil
}

func (j *SQLite) query(q string, args ...any) ([]Trade, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

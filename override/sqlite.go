package override

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rustyeddy/sentinel/risk"
)

const Schema = `
CREATE TABLE IF NOT EXISTS overrides (
    token TEXT PRIMARY KEY,
    intent_id TEXT NOT NULL,
    ticker TEXT NOT NULL,
    intent_json TEXT NOT NULL,
    blocked_reason TEXT NOT NULL,
    justification TEXT NOT NULL,
    actor TEXT NOT NULL,
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_overrides_intent ON overrides(intent_id);

CREATE TRIGGER IF NOT EXISTS overrides_no_delete
BEFORE DELETE ON overrides
BEGIN
    SELECT RAISE(ABORT, 'override audit log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS overrides_no_update
BEFORE UPDATE ON overrides
BEGIN
    SELECT RAISE(ABORT, 'override audit log is append-only');
END;
`

// SQLiteLog keeps the audit trail in its own table. It usually shares the
// ledger's database handle.
type SQLiteLog struct {
	db *sql.DB
}

func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("create override schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

func (s *SQLiteLog) Append(r Record) error {
	intent, err := json.Marshal(r.Intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO overrides
		(token, intent_id, ticker, intent_json, blocked_reason, justification, actor, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Token, r.Intent.ID, r.Intent.Ticker, string(intent), string(r.BlockedReason),
		r.Justification, r.Actor, r.Timestamp.UTC(),
	)
	return err
}

const recordColumns = `token, intent_json, blocked_reason, justification, actor, timestamp`

func (s *SQLiteLog) Get(token string) (Record, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM overrides WHERE token = ?`, token)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %q", ErrRecordNotFound, token)
	}
	return r, err
}

func (s *SQLiteLog) List() ([]Record, error) {
	rows, err := s.db.Query(`SELECT ` + recordColumns + ` FROM overrides ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		r      Record
		intent string
		reason string
	)
	if err := row.Scan(&r.Token, &intent, &reason, &r.Justification, &r.Actor, &r.Timestamp); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(intent), &r.Intent); err != nil {
		return Record{}, fmt.Errorf("override %s intent: %w", r.Token, err)
	}
	r.BlockedReason = risk.ReasonCode(reason)
	return r, nil
}

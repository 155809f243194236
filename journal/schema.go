package journal

// Decimal columns are TEXT so amounts round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
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
	ref TEXT NOT NULL DEFAULT '',
	emotion TEXT NOT NULL DEFAULT '',
	lessons TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_ref ON trades(ref);
`

// addedColumns are applied to databases created before the column existed.
var addedColumns = []struct{ name, ddl string }{
	{"emotion", `ALTER TABLE trades ADD COLUMN emotion TEXT NOT NULL DEFAULT ''`},
	{"lessons", `ALTER TABLE trades ADD COLUMN lessons TEXT NOT NULL DEFAULT ''`},
}

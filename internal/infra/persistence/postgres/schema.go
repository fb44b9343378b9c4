package postgres

// schemaStatements creates the normalized tables mirrored from the snapshot.
// Occupancy against capacity cannot be expressed as a CHECK and stays with the
// rules engine.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS wards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cages (
		id TEXT PRIMARY KEY,
		ward_id TEXT NOT NULL REFERENCES wards(id),
		label TEXT NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity > 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('admin','manager','caretaker','volunteer')),
		team_id TEXT REFERENCES teams(id),
		active BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cats (
		id TEXT PRIMARY KEY,
		intake_number BIGINT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		cage_id TEXT REFERENCES cages(id),
		intake_at TIMESTAMPTZ NOT NULL,
		outcome_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS cats_cage_idx ON cats (cage_id)`,
	`CREATE TABLE IF NOT EXISTS treatments (
		id TEXT PRIMARY KEY,
		cat_id TEXT NOT NULL REFERENCES cats(id),
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		cost_cents BIGINT NOT NULL CHECK (cost_cents >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id TEXT PRIMARY KEY,
		donor TEXT NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		currency CHAR(3) NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		cat_id TEXT REFERENCES cats(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('income','expense')),
		category TEXT NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		currency CHAR(3) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		treatment_id TEXT REFERENCES treatments(id),
		donation_id TEXT REFERENCES donations(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_occurred_idx ON ledger_entries (occurred_at)`,
	`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
}

// mirrorTables lists the normalized tables in foreign-key dependency order.
var mirrorTables = []string{"wards", "cages", "teams", "users", "cats", "treatments", "donations", "ledger_entries"}

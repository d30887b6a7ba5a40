package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is a connection setting applied on Open. readback is the value
// SQLite reports when the pragma is queried afterwards.
type pragma struct {
	name     string
	value    string
	readback string
}

var pragmas = []pragma{
	{name: "journal_mode", value: "WAL", readback: "wal"},
	{name: "synchronous", value: "NORMAL", readback: "1"},
	{name: "busy_timeout", value: "5000", readback: "5000"},
	{name: "foreign_keys", value: "ON", readback: "1"},
}

// migration upgrades a database to version. Statements must be idempotent:
// a crash between the statement and the user_version bump reruns it.
type migration struct {
	version int
	stmt    string
}

var migrations = []migration{
	// Latest-run lookups by scenario (replay).
	{version: 1, stmt: `CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario)`},
}

// currentSchemaVersion is the user_version of a fully migrated database.
const currentSchemaVersion = 1

// Store provides durable storage for simulation runs and their event logs.
//
// Thread-safety: safe for concurrent use. Writes are serialized on a single
// connection, so several runs may record into one Store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path, applying pragmas, the
// embedded schema and pending migrations. Opening an existing database is
// safe and leaves its data untouched.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// between concurrent recorders.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return migrate(db)
}

// migrate runs every migration newer than the stored user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("set user_version %d: %w", m.version, err)
		}
		version = m.version
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// verifyPragma reports whether a pragma currently reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

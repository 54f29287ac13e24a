package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLConfig selects a database and the table artifacts live in.
type SQLConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	DSN    string
	Table  string
}

// SQLStore keeps artifacts as rows of (name, data, updated_at).
type SQLStore struct {
	db       *sql.DB
	tableSQL string
	loadSQL  string
	saveSQL  string
	owned    bool
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenSQLStore opens the database, applies the schema and returns a store.
func OpenSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql store dsn is required")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(ctx, db, cfg.Driver, cfg.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLStore wraps an existing handle. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, driver, table string) (*SQLStore, error) {
	if table == "" {
		table = "model_artifacts"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	s := &SQLStore{db: db}
	switch driver {
	case "sqlite":
		s.tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name        TEXT PRIMARY KEY,
    data        BLOB NOT NULL,
    updated_at  DATETIME NOT NULL
)`, table)
		s.loadSQL = fmt.Sprintf(`SELECT data FROM %s WHERE name = ?`, table)
		s.saveSQL = fmt.Sprintf(`INSERT INTO %s (name, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`, table)
	case "postgres":
		s.tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name        TEXT PRIMARY KEY,
    data        BYTEA NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
)`, table)
		s.loadSQL = fmt.Sprintf(`SELECT data FROM %s WHERE name = $1`, table)
		s.saveSQL = fmt.Sprintf(`INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, table)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, s.tableSQL); err != nil {
		return nil, fmt.Errorf("migrate artifact table: %w", err)
	}
	return s, nil
}

// Load returns the stored bytes or ErrArtifactMiss.
func (s *SQLStore) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.loadSQL, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", name, ErrArtifactMiss)
		}
		return nil, fmt.Errorf("select artifact %s: %w", name, err)
	}
	return data, nil
}

// Save upserts the artifact row.
func (s *SQLStore) Save(ctx context.Context, name string, data []byte) error {
	if _, err := s.db.ExecContext(ctx, s.saveSQL, name, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert artifact %s: %w", name, err)
	}
	return nil
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

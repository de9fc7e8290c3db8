// Package store is the relational backend the evaluation engine runs
// against: an on-disk SQLite file for persisted base and query tables, and
// an in-memory SQLite database used as the fixpoint's working copy.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Dune-Z/Seminaive-Datalog/analysis"
)

// Store wraps one SQLite connection. The evaluator opens two: one against
// the on-disk file (closed after base tables are copied in) and one
// in-memory (the fixpoint's working database, backed up to disk at the end
// of a run).
type Store struct {
	db     *sql.DB
	driver string // registered driver name backing this connection
}

// Open opens the on-disk database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Store{db: db, driver: "sqlite3"}, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	return &Store{db: db, driver: "sqlite3"}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TableExists reports whether name is a table in sqlite_master.
func (s *Store) TableExists(name string) (bool, error) {
	row := s.db.QueryRow(`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	var found int
	switch err := row.Scan(&found); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("checking table %q: %w", name, err)
	}
}

// Arity returns the column count of an existing table, via PRAGMA
// table_info, which is the only portable way SQLite exposes a table's
// shape without parsing its CREATE statement.
func (s *Store) Arity(name string) (int, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(name)))
	if err != nil {
		return 0, fmt.Errorf("introspecting %q: %w", name, err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

// CreateTable creates name with one column per entry in types, named
// column_0 .. column_{n-1}, with a UNIQUE constraint over every column so
// that INSERT OR IGNORE gives set-union insertion semantics.
func (s *Store) CreateTable(name string, types []analysis.DataType) error {
	cols := make([]string, len(types))
	names := make([]string, len(types))
	for i, t := range types {
		cols[i] = fmt.Sprintf("column_%d %s", i, t.SQLType())
		names[i] = fmt.Sprintf("column_%d", i)
	}
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, UNIQUE(%s))",
		quoteIdent(name), strings.Join(cols, ", "), strings.Join(names, ", "),
	)
	_, err := s.db.Exec(stmt)
	if err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	return nil
}

// CreateLike creates name as an empty table with the same columns as like,
// with no UNIQUE constraint — used for the unconstrained temp_p scratch
// table within a semi-naive iteration.
func (s *Store) CreateLike(name, like string) error {
	_, err := s.db.Exec(fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s WHERE 1 = 0", quoteIdent(name), quoteIdent(like)))
	if err != nil {
		return fmt.Errorf("creating %q like %q: %w", name, like, err)
	}
	return nil
}

// CopyTableAs creates name as a full copy of like's current rows.
func (s *Store) CopyTableAs(name, like string) error {
	_, err := s.db.Exec(fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoteIdent(name), quoteIdent(like)))
	if err != nil {
		return fmt.Errorf("copying %q as %q: %w", like, name, err)
	}
	return nil
}

// Drop drops a table if present.
func (s *Store) Drop(name string) error {
	_, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(name)))
	if err != nil {
		return fmt.Errorf("dropping %q: %w", name, err)
	}
	return nil
}

// Exec runs a statement with no result rows expected.
func (s *Store) Exec(query string) (sql.Result, error) {
	res, err := s.db.Exec(query)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w\n%s", err, query)
	}
	return res, nil
}

// Query runs a statement and returns its rows; the caller must Close them.
func (s *Store) Query(query string) (*sql.Rows, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w\n%s", err, query)
	}
	return rows, nil
}

// Count returns the row count of name.
func (s *Store) Count(name string) (int, error) {
	row := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name)))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %q: %w", name, err)
	}
	return n, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

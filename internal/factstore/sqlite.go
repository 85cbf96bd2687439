package factstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS facts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS properties (
	fact_id INTEGER NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	int_value INTEGER,
	text_value TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_properties_fact_name ON properties(fact_id, name);
CREATE INDEX IF NOT EXISTS idx_properties_name_int ON properties(name, int_value);
CREATE INDEX IF NOT EXISTS idx_properties_name_text ON properties(name, text_value);
`

// Open creates a SQLite-backed fact store at path. The special path
// ":memory:" creates an in-memory database, which tests rely on.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL mode for better concurrency between the judge jobs and the CLI.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert creates a new empty fact.
func (s *SQLiteStore) Insert(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO facts DEFAULT VALUES")
	if err != nil {
		return 0, fmt.Errorf("failed to insert fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read fact id: %w", err)
	}
	return id, nil
}

// InsertWith creates a fact with all its properties in one transaction,
// so a failure partway through leaves no half-created fact behind.
func (s *SQLiteStore) InsertWith(ctx context.Context, props ...Property) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "INSERT INTO facts DEFAULT VALUES")
	if err != nil {
		return 0, fmt.Errorf("failed to insert fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read fact id: %w", err)
	}

	for _, p := range props {
		if p.IsText {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO properties (fact_id, name, text_value) VALUES (?, ?, ?)",
				id, p.Name, p.Text)
		} else {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO properties (fact_id, name, int_value) VALUES (?, ?, ?)",
				id, p.Name, p.Int)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to set %s on fact %d: %w", p.Name, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

// SetInt appends an integer value to a property.
func (s *SQLiteStore) SetInt(ctx context.Context, factID int64, property string, value int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO properties (fact_id, name, int_value) VALUES (?, ?, ?)",
		factID, property, value)
	if err != nil {
		return fmt.Errorf("failed to set %s on fact %d: %w", property, factID, err)
	}
	return nil
}

// SetText appends a text value to a property.
func (s *SQLiteStore) SetText(ctx context.Context, factID int64, property string, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO properties (fact_id, name, text_value) VALUES (?, ?, ?)",
		factID, property, value)
	if err != nil {
		return fmt.Errorf("failed to set %s on fact %d: %w", property, factID, err)
	}
	return nil
}

// ReplaceInt sets a property to exactly one integer value. The delete and
// insert run in one transaction so a failure leaves the fact as it was.
func (s *SQLiteStore) ReplaceInt(ctx context.Context, factID int64, property string, value int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM properties WHERE fact_id = ? AND name = ?", factID, property); err != nil {
		return fmt.Errorf("failed to clear %s on fact %d: %w", property, factID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO properties (fact_id, name, int_value) VALUES (?, ?, ?)",
		factID, property, value); err != nil {
		return fmt.Errorf("failed to set %s on fact %d: %w", property, factID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetInt returns the first integer value of a property.
func (s *SQLiteStore) GetInt(ctx context.Context, factID int64, property string) (int64, bool, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		"SELECT int_value FROM properties WHERE fact_id = ? AND name = ? AND int_value IS NOT NULL ORDER BY rowid LIMIT 1",
		factID, property).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read %s from fact %d: %w", property, factID, err)
	}
	return v, true, nil
}

// GetText returns the first text value of a property.
func (s *SQLiteStore) GetText(ctx context.Context, factID int64, property string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT text_value FROM properties WHERE fact_id = ? AND name = ? AND text_value IS NOT NULL ORDER BY rowid LIMIT 1",
		factID, property).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s from fact %d: %w", property, factID, err)
	}
	return v, true, nil
}

// Properties returns every property value stored on a fact.
func (s *SQLiteStore) Properties(ctx context.Context, factID int64) ([]Property, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, int_value, text_value FROM properties WHERE fact_id = ? ORDER BY rowid",
		factID)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties of fact %d: %w", factID, err)
	}
	defer func() { _ = rows.Close() }()

	var props []Property
	for rows.Next() {
		var (
			name string
			iv   sql.NullInt64
			tv   sql.NullString
		)
		if err := rows.Scan(&name, &iv, &tv); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		p := Property{Name: name}
		if tv.Valid {
			p.IsText = true
			p.Text = tv.String
		} else {
			p.Int = iv.Int64
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// First returns the lowest-id fact matching every condition.
func (s *SQLiteStore) First(ctx context.Context, conds ...Cond) (int64, bool, error) {
	where, args, err := condClauses(conds)
	if err != nil {
		return 0, false, err
	}
	var id int64
	q := "SELECT f.id FROM facts f WHERE " + where + " ORDER BY f.id LIMIT 1"
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query facts: %w", err)
	}
	return id, true, nil
}

// Facts returns the ids of all facts matching every condition.
func (s *SQLiteStore) Facts(ctx context.Context, conds ...Cond) ([]int64, error) {
	where, args, err := condClauses(conds)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT f.id FROM facts f WHERE "+where+" ORDER BY f.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan fact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SelectOne executes a bound aggregate query.
func (s *SQLiteStore) SelectOne(ctx context.Context, q Query) (int64, bool, error) {
	if err := q.Validate(); err != nil {
		return 0, false, err
	}
	where, args, err := condClauses(q.Conds)
	if err != nil {
		return 0, false, err
	}

	agg := "MIN"
	if q.Agg == AggMax {
		agg = "MAX"
	}
	stmt := "SELECT " + agg + "(p.int_value) FROM properties p WHERE p.name = ? AND p.int_value IS NOT NULL" +
		" AND p.fact_id IN (SELECT f.id FROM facts f WHERE " + where + ")"
	all := append([]any{q.Pick}, args...)

	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, stmt, all...).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("failed to execute query: %w", err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return v.Int64, true, nil
}

// SelectAll executes a bound query and returns every matching value of Pick.
func (s *SQLiteStore) SelectAll(ctx context.Context, q Query) ([]int64, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	where, args, err := condClauses(q.Conds)
	if err != nil {
		return nil, err
	}

	stmt := "SELECT p.int_value FROM properties p WHERE p.name = ? AND p.int_value IS NOT NULL" +
		" AND p.fact_id IN (SELECT f.id FROM facts f WHERE " + where + ")"
	all := append([]any{q.Pick}, args...)

	rows, err := s.db.QueryContext(ctx, stmt, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var values []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Count returns the total number of facts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count facts: %w", err)
	}
	return n, nil
}

// condClauses renders conditions as EXISTS subqueries over the properties
// table. Every condition must be fully bound; an unbound parameter here
// means a caller skipped Query.Bind.
func condClauses(conds []Cond) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, fmt.Errorf("query has no conditions")
	}
	var (
		clauses []string
		args    []any
	)
	for _, c := range conds {
		if name, ok := c.Value.IsParam(); ok {
			return "", nil, fmt.Errorf("query parameter $%s is not bound", name)
		}
		switch {
		case c.Value.isText && c.Op == OpEq:
			clauses = append(clauses,
				"EXISTS (SELECT 1 FROM properties p WHERE p.fact_id = f.id AND p.name = ? AND p.text_value = ?)")
			args = append(args, c.Property, c.Value.text)
		case c.Value.isText:
			return "", nil, fmt.Errorf("operator not supported for text property %s", c.Property)
		case c.Op == OpEq:
			clauses = append(clauses,
				"EXISTS (SELECT 1 FROM properties p WHERE p.fact_id = f.id AND p.name = ? AND p.int_value = ?)")
			args = append(args, c.Property, c.Value.num)
		case c.Op == OpGt:
			clauses = append(clauses,
				"EXISTS (SELECT 1 FROM properties p WHERE p.fact_id = f.id AND p.name = ? AND p.int_value > ?)")
			args = append(args, c.Property, c.Value.num)
		default:
			return "", nil, fmt.Errorf("unknown operator %d", c.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

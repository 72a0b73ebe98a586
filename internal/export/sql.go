package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"canlog/internal/domain"
	"canlog/internal/telemetry"
)

// ── SQL Destination ────────────────────────────────────────
// Shared implementation for SQLite, Postgres and MySQL. A table gets a
// timestamp column plus one column per signature, named by the
// signature's rendered form.

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
	dialectMySQL
)

func (d dialect) driverName() string {
	switch d {
	case dialectPostgres:
		return "postgres"
	case dialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// quote quotes an identifier. Signature names contain '-', so every
// identifier is quoted.
func (d dialect) quote(name string) string {
	if d == dialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// bind returns the n-th (1-based) bind parameter.
func (d dialect) bind(n int) string {
	if d == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

type colKind int

const (
	kindText colKind = iota
	kindReal
	kindBool
)

func (d dialect) sqlType(k colKind) string {
	switch k {
	case kindReal:
		switch d {
		case dialectPostgres:
			return "DOUBLE PRECISION"
		case dialectMySQL:
			return "DOUBLE"
		default:
			return "REAL"
		}
	case kindBool:
		if d == dialectSQLite {
			return "INTEGER"
		}
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// SQLWriter implements Destination for SQL databases.
type SQLWriter struct {
	dialect dialect
	db      *sql.DB
}

func newSQLWriter(d dialect, dsn string) (*SQLWriter, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driverName(), err)
	}
	if d == dialectSQLite {
		// SQLite only supports one writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}
	return &SQLWriter{dialect: d, db: db}, nil
}

func (w *SQLWriter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return w.db.PingContext(ctx)
}

func (w *SQLWriter) Close() error {
	return w.db.Close()
}

func (w *SQLWriter) Write(ctx context.Context, t *telemetry.Table, target string, mode domain.SyncMode) (int, error) {
	if target == "" {
		return 0, fmt.Errorf("sql export: empty table name")
	}
	names := t.Header()
	kinds := append([]colKind{kindReal}, inferKinds(t)...)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if mode == domain.SyncReplace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+w.dialect.quote(target)); err != nil {
			return 0, fmt.Errorf("drop %s: %w", target, err)
		}
		if err := w.createTable(ctx, tx, target, names, kinds); err != nil {
			return 0, err
		}
	} else if err := w.ensureColumns(ctx, tx, target, names, kinds); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, w.insertSQL(target, names))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	for i, row := range t.Rows {
		args[0] = row.Timestamp
		for j, v := range row.Values {
			args[j+1] = sqlValue(v, kinds[j+1])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(t.Rows), nil
}

func (w *SQLWriter) createTable(ctx context.Context, tx *sql.Tx, target string, names []string, kinds []colKind) error {
	defs := make([]string, len(names))
	for i, n := range names {
		defs[i] = w.dialect.quote(n) + " " + w.dialect.sqlType(kinds[i])
	}
	defs[0] += " NOT NULL"
	q := fmt.Sprintf("CREATE TABLE %s (%s)", w.dialect.quote(target), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	return nil
}

// ensureColumns creates the table if it does not exist and adds any
// columns it lacks.
func (w *SQLWriter) ensureColumns(ctx context.Context, tx *sql.Tx, target string, names []string, kinds []colKind) error {
	existing, err := w.existingColumns(ctx, tx, target)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return w.createTable(ctx, tx, target, names, kinds)
	}
	for i, n := range names {
		if existing[n] {
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			w.dialect.quote(target), w.dialect.quote(n), w.dialect.sqlType(kinds[i]))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("add column %s: %w", n, err)
		}
	}
	return nil
}

func (w *SQLWriter) existingColumns(ctx context.Context, tx *sql.Tx, target string) (map[string]bool, error) {
	var q string
	switch w.dialect {
	case dialectSQLite:
		q = `SELECT name FROM pragma_table_info(?)`
	case dialectPostgres:
		q = `SELECT column_name FROM information_schema.columns
			 WHERE table_name = $1 AND table_schema = current_schema()`
	case dialectMySQL:
		q = `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE TABLE_NAME = ? AND TABLE_SCHEMA = DATABASE()`
	}
	rows, err := tx.QueryContext(ctx, q, target)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", target, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (w *SQLWriter) insertSQL(target string, names []string) string {
	cols := make([]string, len(names))
	binds := make([]string, len(names))
	for i, n := range names {
		cols[i] = w.dialect.quote(n)
		binds[i] = w.dialect.bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.dialect.quote(target), strings.Join(cols, ", "), strings.Join(binds, ", "))
}

// inferKinds picks a column type per signature column: numeric when every
// non-nil value is a number, boolean when every one is a bool, text
// otherwise (including columns that never hold a value).
func inferKinds(t *telemetry.Table) []colKind {
	kinds := make([]colKind, len(t.Columns))
	for j := range t.Columns {
		seen := false
		allNum, allBool := true, true
		for _, row := range t.Rows {
			v := row.Values[j]
			if v == nil {
				continue
			}
			seen = true
			if _, ok := telemetry.AsFloat(v); !ok {
				allNum = false
			}
			if _, ok := v.(bool); !ok {
				allBool = false
			}
			if !allNum && !allBool {
				break
			}
		}
		switch {
		case !seen:
			kinds[j] = kindText
		case allNum:
			kinds[j] = kindReal
		case allBool:
			kinds[j] = kindBool
		default:
			kinds[j] = kindText
		}
	}
	return kinds
}

func sqlValue(v any, k colKind) any {
	if v == nil {
		return nil
	}
	switch k {
	case kindReal:
		f, _ := telemetry.AsFloat(v)
		return f
	case kindBool:
		return v
	default:
		return FormatCell(v)
	}
}

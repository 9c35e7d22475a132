package eval

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists evaluation records in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// OpenStore opens (and creates, if needed) the database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are per connection, so they go in the DSN.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) migrate() error {
	// Row columns are added by autoMigrateTable from the struct's db tags.
	schema := `
	CREATE TABLE IF NOT EXISTS eval_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		model TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS eval_variants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		label TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		prompt TEXT,
		prompt_tokens INTEGER DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES eval_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS eval_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		variant_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (variant_id) REFERENCES eval_variants(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_eval_variants_run_id ON eval_variants(run_id);
	CREATE INDEX IF NOT EXISTS idx_eval_rows_variant_id ON eval_rows(variant_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create initial schema: %w", err)
	}
	if err := s.autoMigrateTable("eval_rows", &Row{}); err != nil {
		return fmt.Errorf("failed to auto-migrate eval_rows: %w", err)
	}
	return nil
}

// autoMigrateTable adds missing columns to a table based on struct tags
func (s *Store) autoMigrateTable(tableName string, model any) error {
	existing := make(map[string]bool)
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, dtype      string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &dtype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[strings.ToLower(name)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		column := columnName(field)
		if column == "" || existing[column] {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", tableName, column, sqliteType(field.Type))
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to add column %s: %w", column, err)
		}
	}
	return nil
}

func columnName(field reflect.StructField) string {
	tag := field.Tag.Get("db")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.ToLower(strings.Split(tag, ",")[0])
}

// sqliteType returns the appropriate SQLite type for a Go type
func sqliteType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		return "INTEGER DEFAULT 0"
	case reflect.Bool:
		return "BOOLEAN NOT NULL DEFAULT FALSE"
	case reflect.Float64, reflect.Float32:
		return "REAL DEFAULT 0.0"
	default:
		return "TEXT"
	}
}

// rowColumns lists the db-tagged columns of Row with pointers into r, in
// field order.
func rowColumns(r *Row) ([]string, []any) {
	v := reflect.ValueOf(r).Elem()
	t := v.Type()
	var cols []string
	var ptrs []any
	for i := 0; i < t.NumField(); i++ {
		col := columnName(t.Field(i))
		if col == "" {
			continue
		}
		cols = append(cols, col)
		ptrs = append(ptrs, v.Field(i).Addr().Interface())
	}
	return cols, ptrs
}

// SaveRecord stores rec in one transaction and sets rec.ID.
func (s *Store) SaveRecord(ctx context.Context, rec *Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "INSERT INTO eval_runs (created_at, model) VALUES (?, ?)",
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Model)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	cols, _ := rowColumns(&Row{})
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+2), ", ")
	insertRow := fmt.Sprintf("INSERT INTO eval_rows (variant_id, position, %s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders)

	for vi, v := range rec.Variants {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO eval_variants (run_id, position, label, fingerprint, prompt, prompt_tokens) VALUES (?, ?, ?, ?, ?, ?)",
			runID, vi, v.Label, v.Fingerprint, v.Prompt, v.PromptTokens)
		if err != nil {
			return 0, fmt.Errorf("failed to insert variant %s: %w", v.Label, err)
		}
		variantID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}

		for ri := range v.Rows {
			row := v.Rows[ri]
			_, ptrs := rowColumns(&row)
			args := []any{variantID, ri}
			for _, p := range ptrs {
				args = append(args, reflect.ValueOf(p).Elem().Interface())
			}
			if _, err := tx.ExecContext(ctx, insertRow, args...); err != nil {
				return 0, fmt.Errorf("failed to insert row %s: %w", row.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	rec.ID = runID
	return runID, nil
}

// LoadRecord reads a stored run. Aggregates are recomputed from the rows.
func (s *Store) LoadRecord(ctx context.Context, id int64) (*Record, error) {
	rec := &Record{ID: id}
	var created string
	err := s.db.QueryRowContext(ctx, "SELECT created_at, model FROM eval_runs WHERE id = ?", id).Scan(&created, &rec.Model)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("eval run %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("bad timestamp for run %d: %w", id, err)
	}

	variants, err := s.db.QueryContext(ctx,
		"SELECT id, label, fingerprint, COALESCE(prompt, ''), prompt_tokens FROM eval_variants WHERE run_id = ? ORDER BY position", id)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for variants.Next() {
		var vid int64
		var v VariantResult
		if err := variants.Scan(&vid, &v.Label, &v.Fingerprint, &v.Prompt, &v.PromptTokens); err != nil {
			variants.Close()
			return nil, err
		}
		ids = append(ids, vid)
		rec.Variants = append(rec.Variants, v)
	}
	variants.Close()
	if err := variants.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM eval_rows WHERE variant_id = ? ORDER BY position", selectRowColumns())
	for i, vid := range ids {
		rows, err := s.db.QueryContext(ctx, query, vid)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var row Row
			_, ptrs := rowColumns(&row)
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return nil, err
			}
			rec.Variants[i].Rows = append(rec.Variants[i].Rows, row)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		rec.Variants[i].Aggregate = Summarize(rec.Variants[i].Label, rec.Variants[i].Rows)
	}
	return rec, nil
}

// selectRowColumns lists Row's columns wrapped so NULLs from rows written
// before a column existed scan as zero values.
func selectRowColumns() string {
	t := reflect.TypeOf(Row{})
	var out []string
	for i := 0; i < t.NumField(); i++ {
		col := columnName(t.Field(i))
		if col == "" {
			continue
		}
		if t.Field(i).Type.Kind() == reflect.String {
			out = append(out, fmt.Sprintf("COALESCE(%s, '')", col))
		} else {
			out = append(out, fmt.Sprintf("COALESCE(%s, 0)", col))
		}
	}
	return strings.Join(out, ", ")
}

// RunSummary is one line of the run history.
type RunSummary struct {
	ID         int64       `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Model      string      `json:"model"`
	Aggregates []Aggregate `json:"aggregates"`
}

// ListRuns returns the newest runs first, at most limit (0 for all).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := "SELECT id FROM eval_runs ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.LoadRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		summary := RunSummary{ID: rec.ID, Timestamp: rec.Timestamp, Model: rec.Model}
		for _, v := range rec.Variants {
			summary.Aggregates = append(summary.Aggregates, v.Aggregate)
		}
		out = append(out, summary)
	}
	return out, nil
}

// DeleteRun removes a run and its rows.
func (s *Store) DeleteRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM eval_runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("eval run %d not found", id)
	}
	return nil
}

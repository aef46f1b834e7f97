// Package duckdb answers read-only statements offline from parquet
// snapshots kept in the object store.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/query"
	"github.com/sorgu/sorgu/internal/storage"
)

type Config struct {
	Store  storage.ObjectStore
	Prefix string
	// Tables limits the snapshots loaded; empty means every snapshot under Prefix.
	Tables []string
	Logger *slog.Logger
}

// Engine downloads the snapshots once, on first use, and exposes each as a
// view named after its table.
type Engine struct {
	store  storage.ObjectStore
	prefix string
	tables []string
	logger *slog.Logger

	mu      sync.Mutex
	db      *sql.DB
	workDir string
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: cfg.Store, prefix: cfg.Prefix, tables: cfg.Tables, logger: logger}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, request)
	observability.ObserveQuery("duckdb", time.Since(start), err)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, failure.New(failure.Execution, "sql is required")
	}
	db, err := e.open(ctx)
	if err != nil {
		return query.Result{}, failure.Wrap(failure.Execution, "offline store unavailable", err)
	}

	// DuckDB has no statement_timeout; the context deadline interrupts it.
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(max(request.TimeoutMillis, 1))*time.Millisecond)
	defer cancel()

	conn, err := db.Conn(execCtx)
	if err != nil {
		return query.Result{}, failure.Wrap(failure.Execution, "could not acquire a store connection", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(execCtx, sqlText, request.Args...)
	if err != nil {
		return query.Result{}, wrapExecError(execCtx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := query.ScanRows(rows)
	if err != nil {
		return query.Result{}, wrapExecError(execCtx, err)
	}
	return query.Result{Columns: columns, Rows: resultRows}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.open(ctx)
	return err
}

// Close drops the in-memory database and the downloaded snapshots.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.db != nil {
		err = e.db.Close()
		e.db = nil
	}
	if e.workDir != "" {
		_ = os.RemoveAll(e.workDir)
		e.workDir = ""
	}
	return err
}

func (e *Engine) open(ctx context.Context) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		return e.db, nil
	}
	if e.store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	snapshots, err := e.snapshotKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots found under %q", e.prefix)
	}

	workDir, err := os.MkdirTemp("", "sorgu-snapshots-")
	if err != nil {
		return nil, fmt.Errorf("create snapshot temp dir: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	for table, key := range snapshots {
		localPath := filepath.Join(workDir, sanitizeFileComponent(table)+".parquet")
		if err := e.download(ctx, key, localPath); err != nil {
			_ = db.Close()
			_ = os.RemoveAll(workDir)
			return nil, err
		}
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteString(localPath))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			_ = db.Close()
			_ = os.RemoveAll(workDir)
			return nil, fmt.Errorf("create view for table %q: %w", table, err)
		}
	}

	e.logger.InfoContext(ctx, "offline_store_loaded", slog.Int("tables", len(snapshots)), slog.String("prefix", e.prefix))
	e.db = db
	e.workDir = workDir
	return db, nil
}

// snapshotKeys maps table name to object key. Configured tables without a
// snapshot are skipped.
func (e *Engine) snapshotKeys(ctx context.Context) (map[string]string, error) {
	keys := map[string]string{}
	if len(e.tables) > 0 {
		for _, table := range e.tables {
			key, err := storage.SnapshotPath(e.prefix, table)
			if err != nil {
				return nil, err
			}
			if _, err := e.store.Stat(ctx, key); err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					e.logger.WarnContext(ctx, "snapshot_missing", slog.String("table", table), slog.String("key", key))
					continue
				}
				return nil, fmt.Errorf("stat snapshot %q: %w", key, err)
			}
			keys[table] = key
		}
		return keys, nil
	}

	objects, err := e.store.List(ctx, e.prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	for _, obj := range objects {
		if table, ok := storage.SnapshotTable(e.prefix, obj.Key); ok {
			keys[table] = obj.Key
		}
	}
	return keys, nil
}

func (e *Engine) download(ctx context.Context, key, localPath string) error {
	reader, err := e.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local parquet file %q: %w", localPath, err)
	}
	_, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	return nil
}

func wrapExecError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure.Wrap(failure.Execution, "statement timed out", err)
	}
	return failure.Wrap(failure.Execution, "query execution failed", err)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

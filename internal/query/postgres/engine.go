package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/query"
)

// queryCanceled is the SQLSTATE Postgres reports when statement_timeout fires.
const queryCanceled = "57014"

type Engine struct {
	db             *sql.DB
	acquireTimeout time.Duration
	logger         *slog.Logger
}

func NewEngine(db *sql.DB, acquireTimeout time.Duration, logger *slog.Logger) *Engine {
	if acquireTimeout <= 0 {
		acquireTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{db: db, acquireTimeout: acquireTimeout, logger: logger}
}

// Execute runs one statement in a read-only transaction on a dedicated
// pooled connection. statement_timeout is set for the transaction only, and
// the connection goes back to the pool on every return path.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, request)
	observability.ObserveQuery("postgres", time.Since(start), err)
	if err != nil {
		e.logger.DebugContext(ctx, "query_failed", slog.String("sql", request.SQL), slog.String("error", err.Error()))
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, failure.New(failure.Execution, "sql is required")
	}
	timeoutMillis := request.TimeoutMillis
	if timeoutMillis < 1 {
		timeoutMillis = 1
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, e.acquireTimeout)
	conn, err := e.db.Conn(acquireCtx)
	cancelAcquire()
	if err != nil {
		return query.Result{}, failure.Wrap(failure.Execution, "could not acquire a store connection", err)
	}
	defer func() { _ = conn.Close() }()

	execCtx, cancel := context.WithTimeout(ctx, query.ClientDeadline(timeoutMillis))
	defer cancel()

	// The store refuses writes inside a read-only transaction, including
	// data-modifying CTEs and SELECT INTO that a prefix check lets through.
	tx, err := conn.BeginTx(execCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, failure.Wrap(failure.Execution, "could not begin read-only transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(execCtx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMillis)); err != nil {
		return query.Result{}, failure.Wrap(failure.Execution, "could not set statement timeout", err)
	}

	rows, err := tx.QueryContext(execCtx, request.SQL, request.Args...)
	if err != nil {
		return query.Result{}, wrapExecError(err)
	}
	columns, resultRows, err := query.ScanRows(rows)
	_ = rows.Close()
	if err != nil {
		return query.Result{}, wrapExecError(err)
	}
	return query.Result{Columns: columns, Rows: resultRows}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func wrapExecError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == queryCanceled {
		return failure.Wrap(failure.Execution, "statement timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.Execution, "statement timed out", err)
	}
	return failure.Wrap(failure.Execution, "query execution failed", err)
}

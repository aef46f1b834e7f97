// Package query defines the store-agnostic execution contract shared by the
// Postgres engine and the offline DuckDB engine.
package query

import (
	"context"
	"time"
)

type Request struct {
	SQL  string
	Args []any
	// TimeoutMillis is the statement budget; values below 1 are raised to 1.
	TimeoutMillis int64
}

// Result holds one statement's output. Every row has len(Columns) values.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
	Ping(ctx context.Context) error
}

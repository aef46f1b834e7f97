// Package snapshot copies store tables into parquet objects so the offline
// DuckDB engine can answer questions without the live database.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sorgu/sorgu/internal/storage"
)

type TableReport struct {
	Table string
	Key   string
	Rows  int
	Bytes int64
}

type Exporter struct {
	db     *sql.DB
	store  storage.ObjectStore
	schema string
	prefix string
	logger *slog.Logger
}

func NewExporter(db *sql.DB, store storage.ObjectStore, schema, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(schema) == "" {
		schema = "public"
	}
	return &Exporter{db: db, store: store, schema: schema, prefix: prefix, logger: logger}
}

// Export snapshots each table in order and stops at the first failure.
func (e *Exporter) Export(ctx context.Context, tables []string) ([]TableReport, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to export")
	}
	reports := make([]TableReport, 0, len(tables))
	for _, table := range tables {
		report, err := e.ExportTable(ctx, table)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (e *Exporter) ExportTable(ctx context.Context, table string) (TableReport, error) {
	key, err := storage.SnapshotPath(e.prefix, table)
	if err != nil {
		return TableReport{}, err
	}

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(e.schema), quoteIdent(table)))
	if err != nil {
		return TableReport{}, fmt.Errorf("read table %q: %w", table, err)
	}
	data, count, err := Encode(table, rows)
	_ = rows.Close()
	if err != nil {
		return TableReport{}, fmt.Errorf("encode table %q: %w", table, err)
	}

	info, err := e.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{})
	if err != nil {
		return TableReport{}, fmt.Errorf("upload snapshot %q: %w", key, err)
	}
	e.logger.InfoContext(ctx, "snapshot_exported",
		slog.String("table", table),
		slog.String("key", key),
		slog.Int("rows", count),
		slog.Int64("bytes", int64(len(data))),
	)
	size := info.Size
	if size == 0 {
		size = int64(len(data))
	}
	return TableReport{Table: table, Key: key, Rows: count, Bytes: size}, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

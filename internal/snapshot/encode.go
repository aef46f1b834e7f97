package snapshot

import (
	"bytes"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindDouble
	kindBool
	kindDate
	kindTimestamp
)

// kindOf maps a driver type name onto the parquet column kind it is stored as.
func kindOf(databaseType string) columnKind {
	switch strings.ToUpper(databaseType) {
	case "INT2", "INT4", "INT8", "SMALLINT", "INTEGER", "BIGINT", "SERIAL", "BIGSERIAL":
		return kindInt
	case "FLOAT4", "FLOAT8", "NUMERIC", "DECIMAL", "REAL", "DOUBLE", "MONEY":
		return kindDouble
	case "BOOL", "BOOLEAN":
		return kindBool
	case "DATE":
		return kindDate
	case "TIMESTAMP", "TIMESTAMPTZ":
		return kindTimestamp
	default:
		return kindString
	}
}

func (k columnKind) node() parquet.Node {
	switch k {
	case kindInt:
		return parquet.Optional(parquet.Int(64))
	case kindDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case kindBool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// Encode writes every row of rows to a parquet file whose columns mirror
// the result columns. Dates become ISO strings and numerics become doubles.
func Encode(table string, rows *sql.Rows) ([]byte, int, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, 0, fmt.Errorf("column types: %w", err)
	}
	kinds := make([]columnKind, len(columnTypes))
	group := parquet.Group{}
	for i, ct := range columnTypes {
		kinds[i] = kindOf(ct.DatabaseTypeName())
		group[ct.Name()] = kinds[i].node()
	}
	schema := parquet.NewSchema(table, group)

	// Leaf order follows the schema's field order, not the result order.
	leafIndex := map[string]int{}
	for i, field := range schema.Fields() {
		leafIndex[field.Name()] = i
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	count := 0
	for rows.Next() {
		values := make([]any, len(columnTypes))
		targets := make([]any, len(columnTypes))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		row := make(parquet.Row, len(columnTypes))
		for i, ct := range columnTypes {
			column := leafIndex[ct.Name()]
			value, err := convert(kinds[i], values[i])
			if err != nil {
				return nil, 0, fmt.Errorf("column %q: %w", ct.Name(), err)
			}
			if value == nil {
				row[column] = parquet.NullValue().Level(0, 0, column)
				continue
			}
			row[column] = parquet.ValueOf(value).Level(0, 1, column)
		}
		if _, err := writer.WriteRows([]parquet.Row{row}); err != nil {
			return nil, 0, fmt.Errorf("write parquet row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), count, nil
}

// convert returns the Go value stored for raw, or nil for SQL NULL.
func convert(kind columnKind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch kind {
	case kindInt:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int:
			return int64(v), nil
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	case kindDouble:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
	case kindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		}
	case kindDate:
		if v, ok := raw.(time.Time); ok {
			return v.Format(time.DateOnly), nil
		}
	case kindTimestamp:
		if v, ok := raw.(time.Time); ok {
			return v.UTC().Format(time.RFC3339), nil
		}
	}
	return fmt.Sprint(raw), nil
}

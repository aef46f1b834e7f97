package query

import (
	"database/sql"
	"fmt"
	"time"
)

// clientGrace is added to the statement budget on the client side so the
// store's own timeout fires first and reports a precise error.
const clientGrace = time.Second

// ClientDeadline is how long a caller waits for a statement with the given
// store budget before abandoning it.
func ClientDeadline(timeoutMillis int64) time.Duration {
	if timeoutMillis < 1 {
		timeoutMillis = 1
	}
	return time.Duration(timeoutMillis)*time.Millisecond + clientGrace
}

// ScanRows drains rows into a Result. Rows always have one value per column.
func ScanRows(rows *sql.Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

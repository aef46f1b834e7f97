package answer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// EmptyPreview is the preview of a result without rows.
const EmptyPreview = "(sonuç yok)"

// Preview renders at most maxRows rows as a pipe table.
func Preview(columns []string, rows [][]any, maxRows int) string {
	if len(rows) == 0 {
		return EmptyPreview
	}
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	cells := make([][]string, 0, len(rows))
	widths := make([]int, len(columns))
	for i, column := range columns {
		widths[i] = max(utf8.RuneCountInString(column), 3)
	}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i := range columns {
			if i < len(row) {
				line[i] = strings.ReplaceAll(FormatValue(row[i]), "\n", " ")
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(line[i]))
		}
		cells = append(cells, line)
	}

	var b strings.Builder
	writeRow := func(values []string) {
		b.WriteString("|")
		for i, value := range values {
			b.WriteString(" ")
			b.WriteString(value)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(value)))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	writeRow(columns)
	b.WriteString("|")
	for _, width := range widths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteString("|")
	}
	b.WriteString("\n")
	for _, line := range cells {
		writeRow(line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatValue renders one scanned value for display.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}

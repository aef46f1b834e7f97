package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const snapshotSuffix = ".parquet"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// SnapshotPath is the object key of one table's parquet snapshot.
func SnapshotPath(prefix, tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return tableName + snapshotSuffix, nil
	}
	return path.Join(prefix, tableName+snapshotSuffix), nil
}

// SnapshotTable returns the table name encoded in a snapshot key, or false
// when key is not a snapshot directly under prefix.
func SnapshotTable(prefix, key string) (string, bool) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	rel := strings.TrimPrefix(key, "/")
	if prefix != "" {
		if !strings.HasPrefix(rel, prefix+"/") {
			return "", false
		}
		rel = strings.TrimPrefix(rel, prefix+"/")
	}
	if strings.Contains(rel, "/") || !strings.HasSuffix(rel, snapshotSuffix) {
		return "", false
	}
	table := strings.TrimSuffix(rel, snapshotSuffix)
	if validatePathComponent(table, "table name") != nil {
		return "", false
	}
	return table, true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

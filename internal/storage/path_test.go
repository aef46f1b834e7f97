package storage

import "testing"

func TestSnapshotPath(t *testing.T) {
	key, err := SnapshotPath("/snapshots/", "order_details")
	if err != nil {
		t.Fatalf("SnapshotPath() error = %v", err)
	}
	if key != "snapshots/order_details.parquet" {
		t.Fatalf("SnapshotPath() = %q", key)
	}
	key, err = SnapshotPath("", "products")
	if err != nil || key != "products.parquet" {
		t.Fatalf("SnapshotPath(no prefix) = %q, %v", key, err)
	}
}

func TestSnapshotPathRejectsInvalidTable(t *testing.T) {
	for _, table := range []string{"", "../etc", "a/b", "-x"} {
		if _, err := SnapshotPath("snapshots", table); err == nil {
			t.Fatalf("SnapshotPath(%q) expected error", table)
		}
	}
}

func TestSnapshotTable(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
		ok     bool
	}{
		{"snapshots", "snapshots/products.parquet", "products", true},
		{"", "categories.parquet", "categories", true},
		{"snapshots", "snapshots/nested/products.parquet", "", false},
		{"snapshots", "other/products.parquet", "", false},
		{"snapshots", "snapshots/notes.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := SnapshotTable(tt.prefix, tt.key)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("SnapshotTable(%q, %q) = %q, %v", tt.prefix, tt.key, got, ok)
		}
	}
}

package duckdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/query"
	"github.com/sorgu/sorgu/internal/storage"
)

type productRow struct {
	ProductID    int64   `parquet:"product_id"`
	ProductName  string  `parquet:"product_name"`
	UnitPrice    float64 `parquet:"unit_price"`
	UnitsInStock int64   `parquet:"units_in_stock"`
}

func TestExecuteQueriesConfiguredSnapshots(t *testing.T) {
	store := newMemoryStore(t, map[string][]productRow{
		"snapshots/products.parquet": {
			{ProductID: 1, ProductName: "Chai", UnitPrice: 18, UnitsInStock: 39},
			{ProductID: 2, ProductName: "Chang", UnitPrice: 19, UnitsInStock: 17},
		},
	})
	engine := NewEngine(Config{Store: store, Prefix: "snapshots", Tables: []string{"products", "categories"}})
	t.Cleanup(func() { _ = engine.Close() })

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:           "select units_in_stock from products where product_name ILIKE '%chai%' LIMIT 1000;",
		TimeoutMillis: 10000,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Columns) != 1 || result.Columns[0] != "units_in_stock" {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(39) {
		t.Fatalf("Rows = %#v", result.Rows)
	}
}

func TestExecuteBindsPositionalArgs(t *testing.T) {
	store := newMemoryStore(t, map[string][]productRow{
		"snapshots/products.parquet": {
			{ProductID: 1, ProductName: "Chai"},
			{ProductID: 2, ProductName: "Chang"},
			{ProductID: 3, ProductName: "Tofu"},
		},
	})
	engine := NewEngine(Config{Store: store, Prefix: "snapshots"})
	t.Cleanup(func() { _ = engine.Close() })

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:           "SELECT DISTINCT product_name FROM products WHERE product_name ILIKE $1 OR product_name ILIKE $2 ORDER BY product_name LIMIT 10",
		Args:          []any{"%ch%", "%CH%"},
		TimeoutMillis: 5000,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var names []string
	for _, row := range result.Rows {
		names = append(names, row[0].(string))
	}
	if strings.Join(names, ",") != "Chai,Chang" {
		t.Fatalf("names = %v", names)
	}
}

func TestExecuteWrapsQueryErrors(t *testing.T) {
	store := newMemoryStore(t, map[string][]productRow{
		"snapshots/products.parquet": {{ProductID: 1, ProductName: "Chai"}},
	})
	engine := NewEngine(Config{Store: store, Prefix: "snapshots"})
	t.Cleanup(func() { _ = engine.Close() })

	_, err := engine.Execute(context.Background(), query.Request{SQL: "select nope from products", TimeoutMillis: 1000})
	if !failure.Is(err, failure.Execution) {
		t.Fatalf("Execute() error = %v, want execution error", err)
	}
}

func TestPingFailsWithoutSnapshots(t *testing.T) {
	engine := NewEngine(Config{Store: newMemoryStore(t, nil), Prefix: "snapshots"})
	if err := engine.Ping(context.Background()); err == nil {
		t.Fatal("Ping() expected error without snapshots")
	}
}

func TestDownloadCopiesObjectToLocalFile(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{"snapshots/products.parquet": []byte("PAR1")}}
	engine := NewEngine(Config{Store: store, Prefix: "snapshots"})
	localPath := filepath.Join(t.TempDir(), "products.parquet")

	if err := engine.download(context.Background(), "snapshots/products.parquet", localPath); err != nil {
		t.Fatalf("download() error = %v", err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "PAR1" {
		t.Fatalf("data = %q", data)
	}
}

func TestDownloadFailsForMissingObject(t *testing.T) {
	engine := NewEngine(Config{Store: newMemoryStore(t, nil), Prefix: "snapshots"})
	localPath := filepath.Join(t.TempDir(), "products.parquet")

	err := engine.download(context.Background(), "snapshots/products.parquet", localPath)
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("download() error = %v, want ErrObjectNotFound", err)
	}
	if _, statErr := os.Stat(localPath); !os.IsNotExist(statErr) {
		t.Fatalf("Stat() error = %v, want not exist", statErr)
	}
}

func buildParquet(rows []productRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[productRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore(t *testing.T, tables map[string][]productRow) *memoryStore {
	t.Helper()
	store := &memoryStore{objects: map[string][]byte{}}
	for key, rows := range tables {
		data, err := buildParquet(rows)
		if err != nil {
			t.Fatalf("buildParquet() error = %v", err)
		}
		store.objects[key] = data
	}
	return store
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, strings.Trim(prefix, "/")+"/") {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

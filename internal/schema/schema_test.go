package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/query"
	"github.com/sorgu/sorgu/internal/storage"
)

type fakeEngine struct {
	tables  []string
	columns map[string][][2]string
	err     error
	calls   []query.Request
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.calls = append(f.calls, request)
	if f.err != nil {
		return query.Result{}, f.err
	}
	switch request.SQL {
	case listTablesSQL:
		rows := make([][]any, 0, len(f.tables))
		for _, table := range f.tables {
			rows = append(rows, []any{table})
		}
		return query.Result{Columns: []string{"table_name"}, Rows: rows}, nil
	case listColumnsSQL:
		rows := make([][]any, 0)
		for _, column := range f.columns[request.Args[1].(string)] {
			rows = append(rows, []any{column[0], column[1]})
		}
		return query.Result{Columns: []string{"column_name", "data_type"}, Rows: rows}, nil
	}
	return query.Result{}, fmt.Errorf("unexpected sql %q", request.SQL)
}

func (f *fakeEngine) Ping(context.Context) error { return f.err }

type textDocument string

func (d textDocument) Load(context.Context) (string, error) { return string(d), nil }
func (d textDocument) Describe() string                      { return "inline" }

func TestResolveUsesLiveSchema(t *testing.T) {
	engine := &fakeEngine{
		tables: []string{"categories", "orders", "products", "audit_log"},
		columns: map[string][][2]string{
			"products": {{"product_id", "integer"}, {"product_name", "text"}},
			"orders":   {{"order_id", "integer"}},
		},
	}
	provider := NewProvider(engine, FileDocument{Path: "testdata/context.md"}, Options{})

	resolved, err := provider.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Source != SourceLive || resolved.Descriptor == nil {
		t.Fatalf("Source = %q", resolved.Source)
	}
	want := strings.Join([]string{
		"Northwind (canlı şemadan çıkarım) - public şema",
		"- orders: order_id (integer)",
		"- products: product_id (integer), product_name (text)",
		"- categories: (kolon yok)",
	}, "\n")
	if resolved.Schema != want {
		t.Fatalf("Schema = %q, want %q", resolved.Schema, want)
	}
	if !strings.HasPrefix(resolved.Rules, "- Yalnızca SELECT") {
		t.Fatalf("Rules = %q", resolved.Rules)
	}
	if engine.calls[0].Args[0] != "public" || engine.calls[0].TimeoutMillis != 10000 {
		t.Fatalf("first request = %+v", engine.calls[0])
	}
}

func TestIntrospectListsEverythingWhenNoCandidateExists(t *testing.T) {
	engine := &fakeEngine{tables: []string{"Invoices", "ledger"}}
	provider := NewProvider(engine, nil, Options{Namespace: "main"})

	descriptor, err := provider.Introspect(context.Background())
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if len(descriptor.Tables) != 2 || descriptor.Tables[0].Name != "invoices" || descriptor.Tables[1].Name != "ledger" {
		t.Fatalf("Tables = %+v", descriptor.Tables)
	}
	if descriptor.Namespace != "main" {
		t.Fatalf("Namespace = %q", descriptor.Namespace)
	}
}

func TestResolveFallsBackToDocument(t *testing.T) {
	engine := &fakeEngine{err: errors.New("connection refused")}
	provider := NewProvider(engine, FileDocument{Path: "testdata/context.md"}, Options{})

	resolved, err := provider.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Source != SourceDocument || resolved.Descriptor != nil {
		t.Fatalf("Source = %q", resolved.Source)
	}
	if !strings.HasPrefix(resolved.Schema, "- products:") || strings.Contains(resolved.Schema, "Notlar") {
		t.Fatalf("Schema = %q", resolved.Schema)
	}
	if resolved.Rules == "" || resolved.Rules != strings.TrimSpace(resolved.Rules) {
		t.Fatalf("Rules = %q", resolved.Rules)
	}
}

func TestResolveFallsBackWhenStoreHasNoTables(t *testing.T) {
	provider := NewProvider(&fakeEngine{}, FileDocument{Path: "testdata/context.md"}, Options{})
	resolved, err := provider.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Source != SourceDocument {
		t.Fatalf("Source = %q", resolved.Source)
	}
}

func TestResolveRequiresBothSections(t *testing.T) {
	tests := map[string]string{
		"missing rules":  "## 5. Örnek Şema\n- products: product_id\n",
		"empty rules":    "## 4. Bağlam (Context) Kuralları\n\n## 5. Örnek Şema\n- products\n",
		"missing schema": "## 4. Bağlam (Context) Kuralları\n- kural\n",
		"empty schema":   "## 4. Bağlam (Context) Kuralları\n- kural\n## 5. Örnek Şema (Northwind uyumlu)\n\n## 6. Son\n",
	}
	for name, text := range tests {
		provider := NewProvider(nil, textDocument(text), Options{})
		if _, err := provider.Resolve(context.Background()); !failure.Is(err, failure.Configuration) {
			t.Fatalf("%s: Resolve() error = %v, want configuration error", name, err)
		}
	}
}

func TestResolveReportsUnreadableDocument(t *testing.T) {
	provider := NewProvider(nil, FileDocument{Path: "testdata/missing.md"}, Options{})
	if _, err := provider.Resolve(context.Background()); !failure.Is(err, failure.SchemaUnavailable) {
		t.Fatalf("Resolve() error = %v, want schema unavailable", err)
	}
}

func TestSectionAcceptsLegacySchemaHeading(t *testing.T) {
	text := "## 5. Örnek Şema\n- products: product_id (integer)\n## 6. Son\n"
	schema, err := ExampleSchema(text)
	if err != nil {
		t.Fatalf("ExampleSchema() error = %v", err)
	}
	if schema != "- products: product_id (integer)" {
		t.Fatalf("ExampleSchema() = %q", schema)
	}
}

func TestSectionRunsToEndOfDocument(t *testing.T) {
	if got := Section("intro\n## 4. Bağlam (Context) Kuralları\n  a\n  b  \n", rulesHeading); got != "a\n  b" {
		t.Fatalf("Section() = %q", got)
	}
}

func TestObjectDocument(t *testing.T) {
	store := objectStore{"context/context.md": "## 4. Bağlam (Context) Kuralları\nkural\n## 5. Örnek Şema\nşema\n"}
	provider := NewProvider(nil, ObjectDocument{Store: store, Key: "context/context.md"}, Options{})
	resolved, err := provider.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Rules != "kural" || resolved.Schema != "şema" {
		t.Fatalf("resolved = %+v", resolved)
	}

	missing := NewProvider(nil, ObjectDocument{Store: store, Key: "nope.md"}, Options{})
	if _, err := missing.Resolve(context.Background()); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Resolve() error = %v, want not found", err)
	}
}

type objectStore map[string]string

func (s objectStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, errors.New("read only")
}

func (s objectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	text, ok := s[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

func (s objectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	text, ok := s[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(text))}, nil
}

func (s objectStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

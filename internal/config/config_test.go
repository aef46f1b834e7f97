package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/sorgu/sorgu/internal/failure"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("sorgu", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Store.Driver != StoreDriverPostgres {
		t.Fatalf("Store.Driver = %q", cfg.Store.Driver)
	}
	if cfg.Store.MaxOpenConns != 15 {
		t.Fatalf("Store.MaxOpenConns = %d", cfg.Store.MaxOpenConns)
	}
	if cfg.Query.TimeoutSeconds != 10 || cfg.Query.Timeout() != 10*time.Second {
		t.Fatalf("Query.TimeoutSeconds = %d", cfg.Query.TimeoutSeconds)
	}
	if cfg.Query.RowLimit != 1000 {
		t.Fatalf("Query.RowLimit = %d", cfg.Query.RowLimit)
	}
	if cfg.Query.LimitDetection != LimitDetectionLegacy {
		t.Fatalf("Query.LimitDetection = %q", cfg.Query.LimitDetection)
	}
	if cfg.AI.Model != "deepseek/deepseek-chat" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.BaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.MaxTokens != 256 {
		t.Fatalf("AI.MaxTokens = %d", cfg.AI.MaxTokens)
	}
	if cfg.AI.RetryAttempts != 3 || cfg.AI.RetryMinWait != time.Second || cfg.AI.RetryMaxWait != 8*time.Second {
		t.Fatalf("AI retry = %d %s %s", cfg.AI.RetryAttempts, cfg.AI.RetryMinWait, cfg.AI.RetryMaxWait)
	}
	if cfg.AI.AnswerTemperature != 0.1 || cfg.AI.SQLTemperature != 0 {
		t.Fatalf("AI temperatures = %f %f", cfg.AI.SQLTemperature, cfg.AI.AnswerTemperature)
	}
	if cfg.Context.DocumentPath != "context.md" {
		t.Fatalf("Context.DocumentPath = %q", cfg.Context.DocumentPath)
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
	if len(cfg.Snapshot.Tables) != 5 {
		t.Fatalf("Snapshot.Tables = %v", cfg.Snapshot.Tables)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("sorgu", mapLookup(map[string]string{"SORGU_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("Observability.LogJSON should default to true in prod")
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"SORGU_PROFILE":               "test",
		"SORGU_STORE_DRIVER":          "duckdb",
		"SORGU_STORE_DSN":             "postgres://example",
		"SORGU_QUERY_TIMEOUT":         "3",
		"SORGU_QUERY_ROW_LIMIT":       "50",
		"SORGU_QUERY_LIMIT_DETECTION": "toplevel",
		"SORGU_QUERY_ENTITY_TABLE":    "suppliers",
		"SORGU_QUERY_ENTITY_COLUMN":   "company_name",
		"SORGU_AI_MODEL":              "openai/gpt-4o-mini",
		"SORGU_AI_MAX_TOKENS":         "128",
		"SORGU_AI_RETRY_MIN_WAIT":     "10ms",
		"SORGU_OBJECTSTORE_ENABLED":   "true",
		"SORGU_SNAPSHOT_TABLES":       "products, categories ,",
		"SORGU_LOG_LEVEL":             "error",
	})
	cfg, err := Load("sorgu", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":18080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Store.Driver != StoreDriverDuckDB {
		t.Fatalf("Store.Driver = %q", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "postgres://example" {
		t.Fatalf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Query.Timeout() != 3*time.Second {
		t.Fatalf("Query.Timeout() = %s", cfg.Query.Timeout())
	}
	if cfg.Query.RowLimit != 50 {
		t.Fatalf("Query.RowLimit = %d", cfg.Query.RowLimit)
	}
	if cfg.Query.LimitDetection != LimitDetectionTopLevel {
		t.Fatalf("Query.LimitDetection = %q", cfg.Query.LimitDetection)
	}
	if cfg.Query.EntityTable != "suppliers" || cfg.Query.EntityColumn != "company_name" {
		t.Fatalf("entity = %s.%s", cfg.Query.EntityTable, cfg.Query.EntityColumn)
	}
	if cfg.AI.Model != "openai/gpt-4o-mini" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.MaxTokens != 128 {
		t.Fatalf("AI.MaxTokens = %d", cfg.AI.MaxTokens)
	}
	if cfg.AI.RetryMinWait != 10*time.Millisecond {
		t.Fatalf("AI.RetryMinWait = %s", cfg.AI.RetryMinWait)
	}
	if !cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled = false, want true")
	}
	if len(cfg.Snapshot.Tables) != 2 || cfg.Snapshot.Tables[1] != "categories" {
		t.Fatalf("Snapshot.Tables = %#v", cfg.Snapshot.Tables)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadHonorsLegacyVariables(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DATABASE_URL":            "postgres://legacy",
		"QUERY_TIMEOUT_SECONDS":   "7",
		"ROW_LIMIT_DEFAULT":       "200",
		"OPENROUTER_API_KEY":      "or-key",
		"OPENROUTER_MODEL":        "meta/llama",
		"OPENROUTER_BASE_URL":     "https://proxy.example/api/v1",
		"OPENROUTER_HTTP_REFERER": "https://sorgu.example",
		"OPENROUTER_HTTP_TITLE":   "Sorgu",
		"DEBUG_SQL":               "true",
	})
	cfg, err := Load("sorgu", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DSN != "postgres://legacy" {
		t.Fatalf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Query.TimeoutSeconds != 7 || cfg.Query.RowLimit != 200 {
		t.Fatalf("Query = %+v", cfg.Query)
	}
	if cfg.AI.APIKey != "or-key" || cfg.AI.Model != "meta/llama" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.BaseURL != "https://proxy.example/api/v1" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.Referer != "https://sorgu.example" || cfg.AI.Title != "Sorgu" {
		t.Fatalf("AI headers = %q %q", cfg.AI.Referer, cfg.AI.Title)
	}
	if !cfg.Observability.DebugSQL || cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
}

func TestLoadPrefersPrefixedOverLegacy(t *testing.T) {
	cfg, err := Load("sorgu", mapLookup(map[string]string{
		"DATABASE_URL":    "postgres://legacy",
		"SORGU_STORE_DSN": "postgres://new",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DSN != "postgres://new" {
		t.Fatalf("Store.DSN = %q", cfg.Store.DSN)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"SORGU_PROFILE": "oops"},
		{"SORGU_HTTP_READ_TIMEOUT": "NaN"},
		{"SORGU_STORE_DRIVER": "mysql"},
		{"SORGU_STORE_MAX_OPEN_CONNS": "oops"},
		{"QUERY_TIMEOUT_SECONDS": "ten"},
		{"SORGU_QUERY_ROW_LIMIT": "0"},
		{"SORGU_QUERY_LIMIT_DETECTION": "parser"},
		{"SORGU_AI_SQL_TEMPERATURE": "bad"},
		{"SORGU_AI_RETRY_ATTEMPTS": "0"},
		{"SORGU_OBJECTSTORE_ENABLED": "maybe"},
		{"SORGU_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("sorgu", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg, err := Load("sorgu", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.RequireCredentials(); !failure.Is(err, failure.Configuration) {
		t.Fatalf("RequireCredentials() error = %v, want configuration error", err)
	}

	cfg.Store.DSN = "postgres://example"
	if err := cfg.RequireCredentials(); !failure.Is(err, failure.Configuration) {
		t.Fatalf("RequireCredentials() without key error = %v", err)
	}

	cfg.AI.APIKey = "key"
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("RequireCredentials() error = %v", err)
	}

	cfg.Store.Driver = StoreDriverDuckDB
	cfg.Store.DSN = ""
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("RequireCredentials() duckdb error = %v", err)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

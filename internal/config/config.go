package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sorgu/sorgu/internal/failure"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverDuckDB   = "duckdb"

	LimitDetectionLegacy   = "legacy"
	LimitDetectionTopLevel = "toplevel"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	Query         QueryConfig
	Context       ContextConfig
	AI            AIConfig
	ObjectStore   ObjectStoreConfig
	Snapshot      SnapshotConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	Driver          string
	DSN             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
}

type QueryConfig struct {
	TimeoutSeconds    int
	RowLimit          int
	LimitDetection    string
	SuggestionTimeout time.Duration
	SuggestionLimit   int
	EntityTable       string
	EntityColumn      string
}

// Timeout is the per-statement budget derived from TimeoutSeconds.
func (q QueryConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSeconds) * time.Second
}

type ContextConfig struct {
	DocumentPath string
	ObjectKey    string
}

type AIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	SQLTemperature    float64
	AnswerTemperature float64
	MaxTokens         int
	Timeout           time.Duration
	RetryAttempts     int
	RetryMinWait      time.Duration
	RetryMaxWait      time.Duration
	Referer           string
	Title             string
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type SnapshotConfig struct {
	Prefix string
	Tables []string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
	DebugSQL bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// legacyKeys maps a SORGU_ key to the plain variable name older deployments
// export. The SORGU_ key wins when both are set.
var legacyKeys = map[string]string{
	"SORGU_STORE_DSN":        "DATABASE_URL",
	"SORGU_QUERY_TIMEOUT":    "QUERY_TIMEOUT_SECONDS",
	"SORGU_QUERY_ROW_LIMIT":  "ROW_LIMIT_DEFAULT",
	"SORGU_AI_API_KEY":       "OPENROUTER_API_KEY",
	"SORGU_AI_BASE_URL":      "OPENROUTER_BASE_URL",
	"SORGU_AI_MODEL":         "OPENROUTER_MODEL",
	"SORGU_AI_REFERER":       "OPENROUTER_HTTP_REFERER",
	"SORGU_AI_TITLE":         "OPENROUTER_HTTP_TITLE",
	"SORGU_DEBUG_SQL":        "DEBUG_SQL",
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	lookup = withLegacyKeys(lookup)

	profile := ProfileDev
	if raw, ok := lookup("SORGU_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SORGU_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var tables string
	steps := []error{
		applyString(lookup, "SORGU_SERVICE_NAME", &cfg.Service.Name),
		applyString(lookup, "SORGU_HTTP_ADDR", &cfg.HTTP.Address),
		applyDuration(lookup, "SORGU_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, "SORGU_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, "SORGU_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),

		applyString(lookup, "SORGU_STORE_DRIVER", &cfg.Store.Driver),
		applyString(lookup, "SORGU_STORE_DSN", &cfg.Store.DSN),
		applyString(lookup, "SORGU_STORE_SCHEMA", &cfg.Store.Schema),
		applyInt(lookup, "SORGU_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns),
		applyInt(lookup, "SORGU_STORE_MAX_IDLE_CONNS", &cfg.Store.MaxIdleConns),
		applyDuration(lookup, "SORGU_STORE_CONN_MAX_IDLE_TIME", &cfg.Store.ConnMaxIdleTime),
		applyDuration(lookup, "SORGU_STORE_CONN_MAX_LIFETIME", &cfg.Store.ConnMaxLifetime),
		applyDuration(lookup, "SORGU_STORE_ACQUIRE_TIMEOUT", &cfg.Store.AcquireTimeout),

		applyInt(lookup, "SORGU_QUERY_TIMEOUT", &cfg.Query.TimeoutSeconds),
		applyInt(lookup, "SORGU_QUERY_ROW_LIMIT", &cfg.Query.RowLimit),
		applyString(lookup, "SORGU_QUERY_LIMIT_DETECTION", &cfg.Query.LimitDetection),
		applyDuration(lookup, "SORGU_QUERY_SUGGESTION_TIMEOUT", &cfg.Query.SuggestionTimeout),
		applyInt(lookup, "SORGU_QUERY_SUGGESTION_LIMIT", &cfg.Query.SuggestionLimit),
		applyString(lookup, "SORGU_QUERY_ENTITY_TABLE", &cfg.Query.EntityTable),
		applyString(lookup, "SORGU_QUERY_ENTITY_COLUMN", &cfg.Query.EntityColumn),

		applyString(lookup, "SORGU_CONTEXT_PATH", &cfg.Context.DocumentPath),
		applyString(lookup, "SORGU_CONTEXT_OBJECT_KEY", &cfg.Context.ObjectKey),

		applyString(lookup, "SORGU_AI_BASE_URL", &cfg.AI.BaseURL),
		applyString(lookup, "SORGU_AI_API_KEY", &cfg.AI.APIKey),
		applyString(lookup, "SORGU_AI_MODEL", &cfg.AI.Model),
		applyFloat(lookup, "SORGU_AI_SQL_TEMPERATURE", &cfg.AI.SQLTemperature),
		applyFloat(lookup, "SORGU_AI_ANSWER_TEMPERATURE", &cfg.AI.AnswerTemperature),
		applyInt(lookup, "SORGU_AI_MAX_TOKENS", &cfg.AI.MaxTokens),
		applyDuration(lookup, "SORGU_AI_TIMEOUT", &cfg.AI.Timeout),
		applyInt(lookup, "SORGU_AI_RETRY_ATTEMPTS", &cfg.AI.RetryAttempts),
		applyDuration(lookup, "SORGU_AI_RETRY_MIN_WAIT", &cfg.AI.RetryMinWait),
		applyDuration(lookup, "SORGU_AI_RETRY_MAX_WAIT", &cfg.AI.RetryMaxWait),
		applyString(lookup, "SORGU_AI_REFERER", &cfg.AI.Referer),
		applyString(lookup, "SORGU_AI_TITLE", &cfg.AI.Title),

		applyBool(lookup, "SORGU_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled),
		applyString(lookup, "SORGU_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint),
		applyString(lookup, "SORGU_OBJECTSTORE_REGION", &cfg.ObjectStore.Region),
		applyString(lookup, "SORGU_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket),
		applyString(lookup, "SORGU_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID),
		applyString(lookup, "SORGU_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey),
		applyBool(lookup, "SORGU_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL),
		applyString(lookup, "SORGU_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix),
		applyBool(lookup, "SORGU_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket),

		applyString(lookup, "SORGU_SNAPSHOT_PREFIX", &cfg.Snapshot.Prefix),
		applyString(lookup, "SORGU_SNAPSHOT_TABLES", &tables),

		applyBool(lookup, "SORGU_LOG_JSON", &cfg.Observability.LogJSON),
		applyLogLevel(lookup, "SORGU_LOG_LEVEL", &cfg.Observability.LogLevel),
		applyBool(lookup, "SORGU_DEBUG_SQL", &cfg.Observability.DebugSQL),

		applyBool(lookup, "SORGU_AUTH_REQUIRED", &cfg.Auth.Required),
		applyString(lookup, "SORGU_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys),
	}
	for _, err := range steps {
		if err != nil {
			return Config{}, err
		}
	}
	if tables != "" {
		cfg.Snapshot.Tables = splitList(tables)
	}
	if cfg.Observability.DebugSQL {
		cfg.Observability.LogLevel = slog.LevelDebug
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverDuckDB:
	default:
		return fmt.Errorf("invalid SORGU_STORE_DRIVER: %q", c.Store.Driver)
	}
	switch c.Query.LimitDetection {
	case LimitDetectionLegacy, LimitDetectionTopLevel:
	default:
		return fmt.Errorf("invalid SORGU_QUERY_LIMIT_DETECTION: %q", c.Query.LimitDetection)
	}
	if c.Query.RowLimit <= 0 {
		return fmt.Errorf("invalid SORGU_QUERY_ROW_LIMIT: must be positive")
	}
	if c.Query.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid SORGU_QUERY_TIMEOUT: must not be negative")
	}
	if c.AI.RetryAttempts < 1 {
		return fmt.Errorf("invalid SORGU_AI_RETRY_ATTEMPTS: must be at least 1")
	}
	if c.Query.EntityTable == "" || c.Query.EntityColumn == "" {
		return fmt.Errorf("entity table and column are required")
	}
	return nil
}

// RequireCredentials reports the settings a question cannot be answered
// without. It runs after every credential source had its chance.
func (c Config) RequireCredentials() error {
	if c.Store.Driver == StoreDriverPostgres && strings.TrimSpace(c.Store.DSN) == "" {
		return failure.New(failure.Configuration, "store connection string is not set (SORGU_STORE_DSN or DATABASE_URL)")
	}
	if strings.TrimSpace(c.AI.APIKey) == "" {
		return failure.New(failure.Configuration, "completion API key is not set (SORGU_AI_API_KEY, OPENROUTER_API_KEY or sorgu login)")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sorgu"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver:          StoreDriverPostgres,
			Schema:          "public",
			MaxOpenConns:    15,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			AcquireTimeout:  30 * time.Second,
		},
		Query: QueryConfig{
			TimeoutSeconds:    10,
			RowLimit:          1000,
			LimitDetection:    LimitDetectionLegacy,
			SuggestionTimeout: 5 * time.Second,
			SuggestionLimit:   5,
			EntityTable:       "products",
			EntityColumn:      "product_name",
		},
		Context: ContextConfig{
			DocumentPath: "context.md",
		},
		AI: AIConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			Model:             "deepseek/deepseek-chat",
			SQLTemperature:    0.0,
			AnswerTemperature: 0.1,
			MaxTokens:         256,
			Timeout:           30 * time.Second,
			RetryAttempts:     3,
			RetryMinWait:      time.Second,
			RetryMaxWait:      8 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sorgu",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Snapshot: SnapshotConfig{
			Prefix: "snapshots",
			Tables: []string{"products", "categories", "customers", "orders", "order_details"},
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func withLegacyKeys(lookup LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		if raw, ok := lookup(key); ok {
			return raw, true
		}
		if legacy, ok := legacyKeys[key]; ok {
			return lookup(legacy)
		}
		return "", false
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sorgu/sorgu/internal/answer"
	"github.com/sorgu/sorgu/internal/config"
	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/guard"
	"github.com/sorgu/sorgu/internal/llm"
	"github.com/sorgu/sorgu/internal/pipeline"
	"github.com/sorgu/sorgu/internal/query"
	duckdbengine "github.com/sorgu/sorgu/internal/query/duckdb"
	"github.com/sorgu/sorgu/internal/query/postgres"
	"github.com/sorgu/sorgu/internal/retryplan"
	"github.com/sorgu/sorgu/internal/schema"
	"github.com/sorgu/sorgu/internal/sqlgen"
	"github.com/sorgu/sorgu/internal/storage"
	s3store "github.com/sorgu/sorgu/internal/storage/s3"
)

// runtime owns the store connections of one command invocation.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *sql.DB
	objects storage.ObjectStore
	engine  query.Engine
	closers []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// openObjectStore is a no-op unless the object store is enabled or the
// offline driver needs it.
func (r *runtime) openObjectStore(ctx context.Context) error {
	cfg := r.cfg.ObjectStore
	if !cfg.Enabled && r.cfg.Store.Driver != config.StoreDriverDuckDB {
		return nil
	}
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	})
	if err != nil {
		return failure.Wrap(failure.Configuration, "object store is unavailable", err)
	}
	r.objects = store
	return nil
}

func (r *runtime) openPostgres(ctx context.Context) error {
	store := r.cfg.Store
	db, err := postgres.Open(ctx, postgres.DBConfig{
		DSN:             store.DSN,
		MaxOpenConns:    store.MaxOpenConns,
		MaxIdleConns:    store.MaxIdleConns,
		ConnMaxIdleTime: store.ConnMaxIdleTime,
		ConnMaxLifetime: store.ConnMaxLifetime,
	})
	if err != nil {
		return failure.Wrap(failure.Configuration, "veritabanına bağlanılamadı", err)
	}
	r.db = db
	r.closers = append(r.closers, db.Close)
	return nil
}

func (r *runtime) openEngine(ctx context.Context) error {
	if err := r.openObjectStore(ctx); err != nil {
		return err
	}
	switch r.cfg.Store.Driver {
	case config.StoreDriverDuckDB:
		engine := duckdbengine.NewEngine(duckdbengine.Config{
			Store:  r.objects,
			Prefix: r.cfg.Snapshot.Prefix,
			Tables: r.cfg.Snapshot.Tables,
			Logger: r.logger,
		})
		r.engine = engine
		r.closers = append(r.closers, engine.Close)
	default:
		if err := r.openPostgres(ctx); err != nil {
			return err
		}
		r.engine = postgres.NewEngine(r.db, r.cfg.Store.AcquireTimeout, r.logger)
	}
	return nil
}

func (r *runtime) document() schema.Document {
	if key := r.cfg.Context.ObjectKey; key != "" && r.objects != nil {
		return schema.ObjectDocument{Store: r.objects, Key: key}
	}
	return schema.FileDocument{Path: r.cfg.Context.DocumentPath}
}

func (r *runtime) schemaProvider() *schema.Provider {
	namespace := r.cfg.Store.Schema
	if r.cfg.Store.Driver == config.StoreDriverDuckDB {
		namespace = "main"
	}
	return schema.NewProvider(r.engine, r.document(), schema.Options{
		Namespace: namespace,
		Timeout:   r.cfg.Query.Timeout(),
		Logger:    r.logger,
	})
}

func (r *runtime) pipeline() (*pipeline.Pipeline, error) {
	cfg := r.cfg
	client, err := llm.NewClient(llm.ClientConfig{
		BaseURL:   cfg.AI.BaseURL,
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		MaxTokens: cfg.AI.MaxTokens,
		Timeout:   cfg.AI.Timeout,
		Referer:   cfg.AI.Referer,
		Title:     cfg.AI.Title,
		Retry: llm.RetryConfig{
			Attempts: cfg.AI.RetryAttempts,
			MinWait:  cfg.AI.RetryMinWait,
			MaxWait:  cfg.AI.RetryMaxWait,
		},
		Logger: r.logger,
	})
	if err != nil {
		return nil, failure.Wrap(failure.Configuration, "completion client", err)
	}
	mode, err := guard.ParseLimitMode(cfg.Query.LimitDetection)
	if err != nil {
		return nil, failure.Wrap(failure.Configuration, "limit detection", err)
	}
	return pipeline.New(pipeline.Deps{
		Schema:    r.schemaProvider(),
		Generator: sqlgen.NewSynthesizer(client, cfg.AI.SQLTemperature, r.logger),
		Engine:    r.engine,
		Planner: retryplan.NewPlanner(r.engine, retryplan.Config{
			EntityTable:       cfg.Query.EntityTable,
			EntityColumn:      cfg.Query.EntityColumn,
			SuggestionLimit:   cfg.Query.SuggestionLimit,
			SuggestionTimeout: cfg.Query.SuggestionTimeout,
			Logger:            r.logger,
		}),
		Answerer: answer.NewSynthesizer(client, cfg.AI.AnswerTemperature, r.logger),
		Policy: guard.Policy{
			RowLimit:  cfg.Query.RowLimit,
			Timeout:   cfg.Query.Timeout(),
			LimitMode: mode,
		},
		EntityColumn: cfg.Query.EntityColumn,
		Logger:       r.logger,
	})
}

func describeStore(cfg config.Config) string {
	if cfg.Store.Driver == config.StoreDriverDuckDB {
		return fmt.Sprintf("duckdb (s3://%s/%s)", cfg.ObjectStore.Bucket, cfg.Snapshot.Prefix)
	}
	return "postgres"
}

package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/query"
)

// DefaultTables are the introspection candidates, in the order they are
// rendered.
var DefaultTables = []string{
	"customers", "orders", "orderdetails", "order_details",
	"products", "suppliers", "categories", "employees", "shippers",
	"customer_customer_demo", "customer_demographics",
	"employee_territories", "region", "territories", "us_states",
}

const (
	listTablesSQL = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY 1`
	listColumnsSQL = `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
)

type Options struct {
	// Namespace is the catalog schema to introspect; "public" when empty.
	Namespace  string
	Candidates []string
	Timeout    time.Duration
	Logger     *slog.Logger
}

type Provider struct {
	engine     query.Engine
	document   Document
	namespace  string
	candidates []string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewProvider builds a provider. engine may be nil, in which case only the
// document is used.
func NewProvider(engine query.Engine, document Document, opts Options) *Provider {
	if opts.Namespace == "" {
		opts.Namespace = "public"
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = DefaultTables
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		engine:     engine,
		document:   document,
		namespace:  opts.Namespace,
		candidates: opts.Candidates,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Resolve returns the rules and schema text for a new session. Rules always
// come from the document; the schema comes from live introspection when it
// works and from the document's example schema otherwise.
func (p *Provider) Resolve(ctx context.Context) (Context, error) {
	if p.document == nil {
		return Context{}, failure.New(failure.Configuration, "context document is not configured")
	}
	text, err := p.document.Load(ctx)
	if err != nil {
		return Context{}, failure.Wrap(failure.SchemaUnavailable, "context document could not be read", err)
	}
	rules, err := Rules(text)
	if err != nil {
		return Context{}, err
	}

	if p.engine != nil {
		descriptor, err := p.Introspect(ctx)
		if err == nil && len(descriptor.Tables) > 0 {
			observability.ObserveSchemaResolution(string(SourceLive))
			return Context{Rules: rules, Schema: descriptor.Render(), Source: SourceLive, Descriptor: &descriptor}, nil
		}
		if err == nil {
			err = errors.New("no tables found")
		}
		p.logger.DebugContext(ctx, "schema_introspection_failed",
			slog.String("namespace", p.namespace),
			slog.String("error", observability.Redact(err.Error())),
		)
	}

	schema, err := ExampleSchema(text)
	if err != nil {
		return Context{}, err
	}
	observability.ObserveSchemaResolution(string(SourceDocument))
	p.logger.DebugContext(ctx, "schema_from_document", slog.String("document", p.document.Describe()))
	return Context{Rules: rules, Schema: schema, Source: SourceDocument}, nil
}

// Introspect reads the candidate tables that exist in the namespace, or
// every table when none of the candidates exist.
func (p *Provider) Introspect(ctx context.Context) (Descriptor, error) {
	if p.engine == nil {
		return Descriptor{}, failure.New(failure.SchemaUnavailable, "no store to introspect")
	}
	result, err := p.run(ctx, listTablesSQL, p.namespace)
	if err != nil {
		return Descriptor{}, failure.Wrap(failure.SchemaUnavailable, "list tables", err)
	}
	existing := make(map[string]struct{}, len(result.Rows))
	all := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		name := strings.ToLower(fmt.Sprint(row[0]))
		if _, seen := existing[name]; seen {
			continue
		}
		existing[name] = struct{}{}
		all = append(all, name)
	}

	present := make([]string, 0, len(p.candidates))
	for _, candidate := range p.candidates {
		if _, ok := existing[candidate]; ok {
			present = append(present, candidate)
		}
	}
	if len(present) == 0 {
		present = all
	}

	descriptor := Descriptor{Namespace: p.namespace, Tables: make([]Table, 0, len(present))}
	for _, name := range present {
		columns, err := p.run(ctx, listColumnsSQL, p.namespace, name)
		if err != nil {
			return Descriptor{}, failure.Wrap(failure.SchemaUnavailable, "list columns of "+name, err)
		}
		table := Table{Name: name, Columns: make([]Column, 0, len(columns.Rows))}
		for _, row := range columns.Rows {
			table.Columns = append(table.Columns, Column{Name: fmt.Sprint(row[0]), Type: fmt.Sprint(row[1])})
		}
		descriptor.Tables = append(descriptor.Tables, table)
	}
	return descriptor, nil
}

func (p *Provider) run(ctx context.Context, sql string, args ...any) (query.Result, error) {
	return p.engine.Execute(ctx, query.Request{
		SQL:           sql,
		Args:          args,
		TimeoutMillis: p.timeout.Milliseconds(),
	})
}

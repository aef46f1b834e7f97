// Package retryplan recovers from empty results: it rewrites the filter on
// the entity column in a fixed order and, when nothing matches, looks up
// similar entity names to suggest.
package retryplan

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/query"
	"github.com/sorgu/sorgu/internal/rewrite"
)

// Runner guards and executes one rewritten statement.
type Runner func(ctx context.Context, sql string) (query.Result, error)

// Attempt records one tried strategy. Err is set when the store rejected
// the rewrite.
type Attempt struct {
	Strategy  Strategy
	SQL       string
	Succeeded bool
	Err       error
}

// Outcome is what Recover ends with. When Recovered is false Result is
// empty and Suggestions may hold similar entity names for Term.
type Outcome struct {
	SQL         string
	Result      query.Result
	Attempts    []Attempt
	Recovered   bool
	Term        string
	Suggestions []string
}

type Config struct {
	EntityTable       string
	EntityColumn      string
	SuggestionLimit   int
	SuggestionTimeout time.Duration
	Logger            *slog.Logger
}

type Planner struct {
	engine  query.Engine
	table   string
	column  string
	limit   int
	timeout time.Duration
	rules   []strategyRule
	logger  *slog.Logger
}

func NewPlanner(engine query.Engine, cfg Config) *Planner {
	if cfg.EntityTable == "" {
		cfg.EntityTable = "products"
	}
	if cfg.EntityColumn == "" {
		cfg.EntityColumn = "product_name"
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = 5
	}
	if cfg.SuggestionTimeout <= 0 {
		cfg.SuggestionTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{
		engine:  engine,
		table:   cfg.EntityTable,
		column:  cfg.EntityColumn,
		limit:   cfg.SuggestionLimit,
		timeout: cfg.SuggestionTimeout,
		rules:   buildRules(cfg.EntityColumn),
		logger:  cfg.Logger,
	}
}

// Applies reports whether sql filters on the entity column.
func (p *Planner) Applies(sql string) bool {
	return len(p.rules) > 0 && p.rules[0].rule.Pattern.MatchString(sql)
}

// Candidates returns the distinct rewrites of sql in priority order.
func (p *Planner) Candidates(sql string) []Candidate {
	seen := map[string]struct{}{sql: {}}
	candidates := make([]Candidate, 0, len(p.rules))
	for _, sr := range p.rules {
		rewritten := sr.rule.Apply(sql)
		if _, dup := seen[rewritten]; dup {
			continue
		}
		seen[rewritten] = struct{}{}
		candidates = append(candidates, Candidate{Strategy: sr.strategy, SQL: rewritten})
	}
	return candidates
}

// Recover tries each candidate through run until one returns rows, then
// falls back to suggestions. It never returns an error.
func (p *Planner) Recover(ctx context.Context, question, sql string, run Runner) Outcome {
	outcome := Outcome{SQL: sql}
	for _, candidate := range p.Candidates(sql) {
		result, err := run(ctx, candidate.SQL)
		attempt := Attempt{Strategy: candidate.Strategy, SQL: candidate.SQL, Err: err}
		attempt.Succeeded = err == nil && !result.Empty()
		outcome.Attempts = append(outcome.Attempts, attempt)
		observability.ObserveRetryAttempt(string(candidate.Strategy), attempt.Succeeded)
		p.logger.DebugContext(ctx, "retry_attempt",
			slog.String("strategy", string(candidate.Strategy)),
			slog.String("sql", candidate.SQL),
			slog.Bool("succeeded", attempt.Succeeded),
		)
		if attempt.Succeeded {
			outcome.SQL = candidate.SQL
			outcome.Result = result
			outcome.Recovered = true
			return outcome
		}
	}

	outcome.Term, outcome.Suggestions = p.Suggest(ctx, question)
	return outcome
}

var quotedTerm = regexp.MustCompile(`['"“”‘’«»]([^'"“”‘’«»]+)['"“”‘’«»]`)

// QuotedTerms returns the quoted substrings of question in order.
func QuotedTerms(question string) []string {
	matches := quotedTerm.FindAllStringSubmatch(question, -1)
	terms := make([]string, 0, len(matches))
	for _, match := range matches {
		if term := strings.TrimSpace(match[1]); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// Suggest looks up entity names containing a quoted term of question. The
// first term with matches wins. Lookup failures count as no matches.
func (p *Planner) Suggest(ctx context.Context, question string) (string, []string) {
	if p.engine == nil {
		return "", nil
	}
	for _, term := range QuotedTerms(question) {
		names, err := p.similar(ctx, term)
		if err != nil {
			p.logger.DebugContext(ctx, "suggestion_lookup_failed",
				slog.String("term", term),
				slog.String("error", observability.Redact(err.Error())),
			)
			continue
		}
		if len(names) > 0 {
			return term, names
		}
	}
	return "", nil
}

func (p *Planner) similar(ctx context.Context, term string) ([]string, error) {
	column := quoteIdent(p.column)
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s ILIKE $1 OR %s ILIKE $2 OR %s ILIKE $3 LIMIT 10",
		column, quoteIdent(p.table), column, column, column)
	result, err := p.engine.Execute(ctx, query.Request{
		SQL: sql,
		Args: []any{
			"%" + term + "%",
			"%" + strings.ToLower(term) + "%",
			"%" + rewrite.Capitalize(term) + "%",
		},
		TimeoutMillis: p.timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, min(len(result.Rows), p.limit))
	for _, row := range result.Rows {
		if len(names) == p.limit {
			break
		}
		if len(row) == 0 || row[0] == nil {
			continue
		}
		names = append(names, fmt.Sprint(row[0]))
	}
	return names, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// Package pipeline runs one question through generation, guarding,
// execution, empty-result recovery and answering.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sorgu/sorgu/internal/answer"
	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/guard"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/prompt"
	"github.com/sorgu/sorgu/internal/query"
	"github.com/sorgu/sorgu/internal/retryplan"
	"github.com/sorgu/sorgu/internal/schema"
	"github.com/sorgu/sorgu/internal/sqlgen"
)

// SchemaResolver yields the rules and schema text of a new session.
type SchemaResolver interface {
	Resolve(ctx context.Context) (schema.Context, error)
}

type Deps struct {
	Schema       SchemaResolver
	Generator    *sqlgen.Synthesizer
	Engine       query.Engine
	Planner      *retryplan.Planner
	Answerer     *answer.Synthesizer
	Policy       guard.Policy
	EntityColumn string
	Logger       *slog.Logger
}

// Pipeline holds the long-lived collaborators. It is safe for concurrent
// use; per-question state lives in Session and Outcome.
type Pipeline struct {
	schema       SchemaResolver
	generator    *sqlgen.Synthesizer
	engine       query.Engine
	planner      *retryplan.Planner
	answerer     *answer.Synthesizer
	policy       guard.Policy
	entityColumn string
	logger       *slog.Logger
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Schema == nil || deps.Generator == nil || deps.Engine == nil || deps.Answerer == nil {
		return nil, errors.New("pipeline requires schema, generator, engine and answerer")
	}
	if deps.Policy.RowLimit <= 0 {
		return nil, errors.New("pipeline requires a positive row limit")
	}
	if deps.Planner == nil {
		deps.Planner = retryplan.NewPlanner(deps.Engine, retryplan.Config{EntityColumn: deps.EntityColumn})
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		schema:       deps.Schema,
		generator:    deps.Generator,
		engine:       deps.Engine,
		planner:      deps.Planner,
		answerer:     deps.Answerer,
		policy:       deps.Policy,
		entityColumn: deps.EntityColumn,
		logger:       deps.Logger,
	}, nil
}

// Session carries the schema context resolved for one conversation.
type Session struct {
	pipeline *Pipeline
	Context  schema.Context
}

// NewSession resolves the schema context once for the questions that follow.
func (p *Pipeline) NewSession(ctx context.Context) (*Session, error) {
	resolved, err := p.schema.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{pipeline: p, Context: resolved}, nil
}

// Outcome is everything one question produced. SQL is the statement whose
// rows are in Result, which differs from Query.Normalized when a retry
// strategy succeeded.
type Outcome struct {
	Question      string
	Query         sqlgen.GeneratedQuery
	SQL           string
	LimitInjected bool
	Result        query.Result
	Attempts      []retryplan.Attempt
	Recovered     bool
	Term          string
	Suggestions   []string
	Answer        answer.Answer
	Preview       string
}

// NoMatch reports an empty final result.
func (o Outcome) NoMatch() bool {
	return o.Result.Empty()
}

// Ask answers one question. Every returned error is local to the question
// and carries a failure kind; the session stays usable.
func (s *Session) Ask(ctx context.Context, question string) (Outcome, error) {
	p := s.pipeline
	logger := observability.LoggerFromContext(ctx, p.logger)
	outcome := Outcome{Question: strings.TrimSpace(question)}
	if outcome.Question == "" {
		return outcome, failure.New(failure.Validation, "question is empty")
	}

	messages := prompt.BuildGeneration(prompt.GenerationInput{
		Rules:        s.Context.Rules,
		Schema:       s.Context.Schema,
		Question:     outcome.Question,
		EntityColumn: p.entityColumn,
	})
	generated, err := p.generator.Synthesize(ctx, messages)
	if err != nil {
		observability.ObserveQuestion("generation_failed")
		return outcome, err
	}
	outcome.Query = generated
	outcome.SQL = generated.Normalized

	safe, err := p.guard(generated.Normalized)
	if err != nil {
		observability.ObserveQuestion("rejected")
		logger.InfoContext(ctx, "sql_rejected", slog.String("sql", generated.Normalized), slog.String("reason", failure.Message(err)))
		return outcome, err
	}
	outcome.SQL = safe.SQL
	outcome.LimitInjected = safe.LimitInjected

	result, err := p.engine.Execute(ctx, query.Request{SQL: safe.SQL, TimeoutMillis: safe.TimeoutMillis})
	if err != nil {
		observability.ObserveQuestion("execution_failed")
		logger.InfoContext(ctx, "sql_failed", slog.String("sql", safe.SQL), slog.String("error", observability.PresentError(err)))
		if failure.KindOf(err) == "" {
			err = failure.Wrap(failure.Execution, "query execution failed", err)
		}
		return outcome, err
	}
	outcome.Result = result

	if result.Empty() && p.planner.Applies(generated.Normalized) {
		recovery := p.planner.Recover(ctx, outcome.Question, generated.Normalized, p.run)
		outcome.Attempts = recovery.Attempts
		outcome.Term = recovery.Term
		outcome.Suggestions = recovery.Suggestions
		if recovery.Recovered {
			outcome.Recovered = true
			outcome.Result = recovery.Result
			if safe, err := p.guard(recovery.SQL); err == nil {
				outcome.SQL = safe.SQL
			}
		}
	}

	outcome.Preview = answer.Preview(outcome.Result.Columns, outcome.Result.Rows, prompt.PreviewRows)
	outcome.Answer = p.answerer.Answer(ctx, answer.Input{
		Question: outcome.Question,
		Rules:    s.Context.Rules,
		Schema:   s.Context.Schema,
		SQL:      outcome.SQL,
		Result:   outcome.Result,
	})

	status := "answered"
	if outcome.NoMatch() {
		status = "no_match"
	}
	observability.ObserveQuestion(status)
	logger.DebugContext(ctx, "question_completed",
		slog.String("sql", outcome.SQL),
		slog.Int("rows", len(outcome.Result.Rows)),
		slog.Int("retries", len(outcome.Attempts)),
		slog.String("answer_source", string(outcome.Answer.Source)),
		slog.Duration("duration", outcome.Result.Duration),
	)
	return outcome, nil
}

func (p *Pipeline) guard(sql string) (guard.SafeQuery, error) {
	safe, err := guard.Guard(sql, p.policy)
	if err != nil {
		observability.IncrementGuardRejection()
	}
	return safe, err
}

// run guards and executes a rewritten statement for the retry planner.
func (p *Pipeline) run(ctx context.Context, sql string) (query.Result, error) {
	safe, err := p.guard(sql)
	if err != nil {
		return query.Result{}, err
	}
	return p.engine.Execute(ctx, query.Request{SQL: safe.SQL, TimeoutMillis: safe.TimeoutMillis})
}

// Ask answers a single question in a fresh session.
func (p *Pipeline) Ask(ctx context.Context, question string) (Outcome, error) {
	session, err := p.NewSession(ctx)
	if err != nil {
		observability.ObserveQuestion("schema_failed")
		return Outcome{Question: strings.TrimSpace(question)}, err
	}
	return session.Ask(ctx, question)
}

// Ping checks that the store answers.
func (p *Pipeline) Ping(ctx context.Context) error {
	return p.engine.Ping(ctx)
}

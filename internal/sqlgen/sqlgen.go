// Package sqlgen turns a completion into a single normalized SQL statement.
package sqlgen

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/guard"
	"github.com/sorgu/sorgu/internal/llm"
	"github.com/sorgu/sorgu/internal/rewrite"
)

// FallbackSQL replaces output that holds no recognizable statement.
const FallbackSQL = "select 1"

// GeneratedQuery is one completion after post-processing. Validated is true
// only when Normalized starts with select or with and holds a single
// statement.
type GeneratedQuery struct {
	Raw        string
	Normalized string
	Validated  bool
}

type Synthesizer struct {
	completer   llm.Completer
	temperature float64
	logger      *slog.Logger
}

func NewSynthesizer(completer llm.Completer, temperature float64, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{completer: completer, temperature: temperature, logger: logger}
}

// Synthesize asks the completer for SQL and post-processes the reply. A
// completer failure, after its own retries, is returned as a completion
// service error for this question only.
func (s *Synthesizer) Synthesize(ctx context.Context, messages []llm.Message) (GeneratedQuery, error) {
	raw, err := s.completer.Complete(ctx, llm.Request{
		Messages:    messages,
		Temperature: s.temperature,
		Purpose:     "sql",
	})
	if err != nil {
		if failure.KindOf(err) == "" {
			err = failure.Wrap(failure.CompletionService, "sql generation failed", err)
		}
		return GeneratedQuery{}, err
	}
	query := Normalize(raw)
	s.logger.DebugContext(ctx, "sql_generated",
		slog.String("raw", raw),
		slog.String("sql", query.Normalized),
		slog.Bool("validated", query.Validated),
	)
	return query, nil
}

// Normalize applies the post-processing steps in order: fence stripping,
// empty fallback, statement extraction, identifier normalization and
// literal casing.
func Normalize(raw string) GeneratedQuery {
	cleaned := llm.StripCodeFence(raw)
	if cleaned == "" {
		return validate(raw, FallbackSQL)
	}
	sql := Extract(cleaned)
	sql = rewrite.Transliterate(sql)
	sql = rewrite.Identifiers.ApplyOutsideLiterals(sql)
	sql = rewrite.LiteralCasing.Apply(sql)
	return validate(raw, strings.TrimSpace(sql))
}

var statementStart = regexp.MustCompile(`(?is)\b(select|with)\b.+`)

// Extract picks the statement out of a completion: the first line starting
// with "select " or "with ", else the whole text if it starts that way, else
// everything from the first select/with keyword, else FallbackSQL.
func Extract(cleaned string) string {
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if startsStatement(line) {
			return line
		}
	}
	if startsStatement(cleaned) {
		return cleaned
	}
	if match := statementStart.FindString(cleaned); match != "" {
		return strings.TrimSpace(match)
	}
	return FallbackSQL
}

func startsStatement(text string) bool {
	lower := strings.ToLower(text)
	return strings.HasPrefix(lower, "select ") || strings.HasPrefix(lower, "with ")
}

func validate(raw, normalized string) GeneratedQuery {
	return GeneratedQuery{
		Raw:        raw,
		Normalized: normalized,
		Validated:  guard.IsReadOnly(normalized) && guard.SingleStatement(normalized),
	}
}

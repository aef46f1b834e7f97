package retryplan

import (
	"regexp"
	"strings"

	"github.com/sorgu/sorgu/internal/rewrite"
)

// Strategy names one rewrite tried on an empty result.
type Strategy string

const (
	StrategySubstring Strategy = "substring"
	StrategyTitleCase Strategy = "title_case"
	StrategyLowerCase Strategy = "lower_case"
)

// Candidate is a rewritten statement waiting to be tried.
type Candidate struct {
	Strategy Strategy
	SQL      string
}

type strategyRule struct {
	strategy Strategy
	rule     rewrite.Rule
}

// comparisonPattern matches "<column> = 'x'", "<column> LIKE 'x'" and
// "<column> ILIKE 'x'" with an optional table qualifier, capturing the
// literal body without surrounding % markers.
func comparisonPattern(column string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)((?:\b\w+\.)?\b` + regexp.QuoteMeta(column) + `)\s*(?:=|\bi?like\b)\s*'%?((?:[^'%]|'')+)%?'`)
}

func buildRules(column string) []strategyRule {
	pattern := comparisonPattern(column)
	wildcard := func(transform func(string) string) func(string) string {
		return func(match string) string {
			parts := pattern.FindStringSubmatch(match)
			// Case transforms see the literal unescaped so '' does not split a word.
			literal := strings.ReplaceAll(parts[2], "''", "'")
			return parts[1] + " ILIKE '%" + strings.ReplaceAll(transform(literal), "'", "''") + "%'"
		}
	}
	return []strategyRule{
		{
			strategy: StrategySubstring,
			rule: rewrite.Rule{
				Name:      "exact match to substring",
				Pattern:   pattern,
				Func:      wildcard(func(s string) string { return s }),
				Rationale: "the question may name part of the entity",
			},
		},
		{
			strategy: StrategyTitleCase,
			rule: rewrite.Rule{
				Name:      "title-cased substring",
				Pattern:   pattern,
				Func:      wildcard(rewrite.Title),
				Rationale: "entity names are stored title-cased",
			},
		},
		{
			strategy: StrategyLowerCase,
			rule: rewrite.Rule{
				Name:      "lower-cased substring",
				Pattern:   pattern,
				Func:      wildcard(strings.ToLower),
				Rationale: "some entity names are stored lower-cased",
			},
		},
	}
}

// Package guard decides whether generated SQL may reach the store and bounds
// what it may return.
package guard

import (
	"fmt"
	"strings"
	"time"

	"github.com/sorgu/sorgu/internal/failure"
)

// LimitMode selects how an existing row limit is detected.
type LimitMode int

const (
	// LimitLegacy treats any occurrence of "limit", in any position or
	// context, as an existing limit. It over-triggers on column names, string
	// literals and subqueries that contain the word.
	LimitLegacy LimitMode = iota
	// LimitTopLevel only counts a LIMIT keyword outside literals, comments and
	// parentheses.
	LimitTopLevel
)

func ParseLimitMode(raw string) (LimitMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "legacy":
		return LimitLegacy, nil
	case "toplevel":
		return LimitTopLevel, nil
	default:
		return LimitLegacy, fmt.Errorf("unknown limit detection mode %q", raw)
	}
}

type Policy struct {
	RowLimit  int
	Timeout   time.Duration
	LimitMode LimitMode
}

// SafeQuery is a statement that passed the read-only and single-statement
// checks and carries a row bound.
type SafeQuery struct {
	SQL           string
	TimeoutMillis int64
	LimitInjected bool
}

// Guard validates sql and returns the bounded form that may run.
func Guard(sql string, policy Policy) (SafeQuery, error) {
	if !IsReadOnly(sql) {
		return SafeQuery{}, failure.New(failure.Validation, "only SELECT or WITH statements may run")
	}
	if !SingleStatement(sql) {
		return SafeQuery{}, failure.New(failure.Validation, "only a single statement may run")
	}
	if policy.RowLimit <= 0 {
		return SafeQuery{}, failure.New(failure.Validation, "row limit must be positive")
	}
	limited := EnforceLimit(sql, policy.RowLimit, policy.LimitMode)
	return SafeQuery{
		SQL:           limited,
		TimeoutMillis: TimeoutMillis(policy.Timeout),
		LimitInjected: !HasLimit(stripTerminators(sql), policy.LimitMode),
	}, nil
}

// IsReadOnly reports whether the trimmed, lower-cased text starts with
// select or with.
func IsReadOnly(sql string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sql))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

// SingleStatement reports whether sql has no statement separator other than
// trailing terminators.
func SingleStatement(sql string) bool {
	for _, tok := range scan(stripTerminators(sql)) {
		if tok.kind == tokenSemicolon {
			return false
		}
	}
	return true
}

// EnforceLimit appends "LIMIT n" when no limit is detected and always ends
// the statement with exactly one terminator. Applying it twice is a no-op.
func EnforceLimit(sql string, limit int, mode LimitMode) string {
	trimmed := stripTerminators(sql)
	if HasLimit(trimmed, mode) {
		return trimmed + ";"
	}
	sep := " "
	if _, open := scanTail(trimmed); open {
		sep = "\n"
	}
	return fmt.Sprintf("%s%sLIMIT %d;", trimmed, sep, limit)
}

func HasLimit(sql string, mode LimitMode) bool {
	if mode == LimitTopLevel {
		for _, tok := range scan(sql) {
			if tok.kind == tokenWord && tok.depth == 0 && strings.EqualFold(tok.text, "limit") {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(sql), "limit")
}

// TimeoutMillis converts a statement budget to the store's millisecond
// setting. Zero would disable the store timeout, so the floor is 1 ms.
func TimeoutMillis(timeout time.Duration) int64 {
	ms := timeout.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}

func stripTerminators(sql string) string {
	trimmed := strings.TrimSpace(sql)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

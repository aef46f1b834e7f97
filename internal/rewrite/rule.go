// Package rewrite holds the ordered, regex-based rewrite tables applied to
// generated SQL. Each rule is small enough to test alone; nothing here parses SQL.
package rewrite

import (
	"regexp"
	"strings"
)

// Rule rewrites every match of Pattern. Func, when set, takes precedence over
// Replacement and receives the whole match.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	Func        func(match string) string
	Rationale   string
}

func (r Rule) Apply(text string) string {
	if r.Pattern == nil {
		return text
	}
	if r.Func != nil {
		return r.Pattern.ReplaceAllStringFunc(text, r.Func)
	}
	return r.Pattern.ReplaceAllString(text, r.Replacement)
}

// Table applies its rules in order, each over the output of the previous one.
type Table []Rule

func (t Table) Apply(text string) string {
	for _, rule := range t {
		text = rule.Apply(text)
	}
	return text
}

// ApplyOutsideLiterals applies the table to the text between single-quoted
// string literals and leaves the literals untouched.
func (t Table) ApplyOutsideLiterals(text string) string {
	var b strings.Builder
	for _, seg := range SplitLiterals(text) {
		if seg.Literal {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(t.Apply(seg.Text))
	}
	return b.String()
}

// Segment is a run of text that is either inside a single-quoted literal
// (quotes included) or outside of one.
type Segment struct {
	Text    string
	Literal bool
}

// SplitLiterals cuts text at single-quoted literal boundaries. A doubled quote
// inside a literal is an escaped quote. An unterminated literal runs to the end.
func SplitLiterals(text string) []Segment {
	var (
		segments []Segment
		start    int
		inQuote  bool
	)
	for i := 0; i < len(text); i++ {
		if text[i] != '\'' {
			continue
		}
		if !inQuote {
			if i > start {
				segments = append(segments, Segment{Text: text[start:i]})
			}
			start = i
			inQuote = true
			continue
		}
		if i+1 < len(text) && text[i+1] == '\'' {
			i++
			continue
		}
		segments = append(segments, Segment{Text: text[start : i+1], Literal: true})
		start = i + 1
		inQuote = false
	}
	if start < len(text) {
		segments = append(segments, Segment{Text: text[start:], Literal: inQuote})
	}
	return segments
}

func identifierRule(from, to string) Rule {
	pattern := `\b` + regexp.QuoteMeta(from)
	if last := from[len(from)-1]; isWordByte(last) {
		pattern += `\b`
	}
	return Rule{
		Name:        from,
		Pattern:     regexp.MustCompile(pattern),
		Replacement: to,
		Rationale:   "schema uses snake_case for " + to,
	}
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

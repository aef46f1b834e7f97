package guard

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenSemicolon
)

type token struct {
	kind  tokenKind
	text  string
	depth int
}

// scan returns the words and semicolons of sql that sit outside string
// literals, quoted identifiers and comments, with their parenthesis depth.
func scan(sql string) []token {
	tokens, _ := scanTail(sql)
	return tokens
}

// scanTail is scan plus whether the text ends inside a line comment.
func scanTail(sql string) ([]token, bool) {
	var (
		tokens      []token
		depth       int
		lineComment bool
	)
	for i := 0; i < len(sql); {
		c := sql[i]
		lineComment = false
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(sql, i, c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			lineComment = i == len(sql)
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case c == ';':
			tokens = append(tokens, token{kind: tokenSemicolon, text: ";", depth: depth})
			i++
		case isIdentStart(c):
			start := i
			for i < len(sql) && isIdentPart(sql[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: sql[start:i], depth: depth})
		default:
			i++
		}
	}
	return tokens, lineComment
}

// skipQuoted returns the index just past the quoted run starting at start.
// A doubled quote character is an escape.
func skipQuoted(sql string, start int, quote byte) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '$'
}

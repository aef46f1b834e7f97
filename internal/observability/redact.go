package observability

import (
	"regexp"
	"strings"
)

var (
	dsnPasswordPattern = regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/@\s]+:)[^@\s]+@`)
	bearerPattern      = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`)
	apiKeyPattern      = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
)

// PresentError renders err for a terminal or HTTP client with connection
// passwords and API keys masked.
func PresentError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}

func Redact(text string) string {
	text = dsnPasswordPattern.ReplaceAllString(text, "${1}****@")
	text = bearerPattern.ReplaceAllString(text, "${1}****")
	text = apiKeyPattern.ReplaceAllString(text, "sk-****")
	return strings.TrimSpace(text)
}

// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Temperature float64
	// Purpose labels metrics and logs, e.g. "sql" or "answer".
	Purpose string
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// StripCodeFence removes a surrounding markdown code fence and any stray
// backticks around the text.
func StripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.Trim(strings.TrimSpace(trimmed), "`")
}

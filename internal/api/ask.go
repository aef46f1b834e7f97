package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sorgu/sorgu/internal/answer"
	"github.com/sorgu/sorgu/internal/auth"
	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/pipeline"
)

type askRequest struct {
	Question string `json:"question"`
}

type retryAttempt struct {
	Strategy  string `json:"strategy"`
	SQL       string `json:"sql"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

type askResponse struct {
	Question      string         `json:"question"`
	SQL           string         `json:"sql"`
	GeneratedSQL  string         `json:"generated_sql"`
	LimitInjected bool           `json:"limit_injected"`
	Columns       []string       `json:"columns"`
	Rows          [][]any        `json:"rows"`
	Attempts      []retryAttempt `json:"attempts"`
	Term          string         `json:"term,omitempty"`
	Suggestions   []string       `json:"suggestions"`
	Answer        answer.Answer  `json:"answer"`
	Stats         map[string]any `json:"stats"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	ctx := r.Context()
	if deps.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.AskTimeout)
		defer cancel()
	}

	outcome, err := deps.Asker.Ask(ctx, request.Question)
	if err != nil {
		writeAskError(r.Context(), w, outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, newAskResponse(outcome))
}

func writeAskError(ctx context.Context, w http.ResponseWriter, outcome pipeline.Outcome, err error) {
	extra := map[string]any{"details": observability.PresentError(err)}
	if outcome.Query.Normalized != "" {
		extra["sql"] = outcome.Query.Normalized
	}
	message := observability.Redact(failure.Message(err))
	switch failure.KindOf(err) {
	case failure.Validation:
		writeError(ctx, w, http.StatusUnprocessableEntity, "SQL_NOT_ALLOWED", message, false, extra)
	case failure.Execution:
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", message, false, extra)
	case failure.CompletionService:
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", message, true, extra)
	case failure.SchemaUnavailable, failure.Configuration:
		writeError(ctx, w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", message, true, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "question could not be answered", true, extra)
	}
}

func newAskResponse(outcome pipeline.Outcome) askResponse {
	attempts := make([]retryAttempt, 0, len(outcome.Attempts))
	for _, attempt := range outcome.Attempts {
		item := retryAttempt{Strategy: string(attempt.Strategy), SQL: attempt.SQL, Succeeded: attempt.Succeeded}
		if attempt.Err != nil {
			item.Error = observability.PresentError(attempt.Err)
		}
		attempts = append(attempts, item)
	}
	rows := outcome.Result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	suggestions := outcome.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return askResponse{
		Question:      outcome.Question,
		SQL:           outcome.SQL,
		GeneratedSQL:  outcome.Query.Normalized,
		LimitInjected: outcome.LimitInjected,
		Columns:       outcome.Result.Columns,
		Rows:          rows,
		Attempts:      attempts,
		Term:          outcome.Term,
		Suggestions:   suggestions,
		Answer:        outcome.Answer,
		Stats: map[string]any{
			"row_count":   len(outcome.Result.Rows),
			"duration_ms": outcome.Result.Duration.Milliseconds(),
			"recovered":   outcome.Recovered,
		},
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

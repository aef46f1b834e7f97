// Package answer turns a query result into the reply shown to the user.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sorgu/sorgu/internal/llm"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/prompt"
	"github.com/sorgu/sorgu/internal/query"
	"github.com/sorgu/sorgu/internal/rewrite"
)

type Source string

const (
	SourceDeterministic Source = "deterministic"
	SourceGenerated     Source = "generated"
	// SourcePreview means no answer could be produced and Text is the raw
	// row preview.
	SourcePreview Source = "preview"
)

type Answer struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

type Input struct {
	Question string
	Rules    string
	Schema   string
	SQL      string
	Result   query.Result
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

// Answer picks exactly one answer. Known question shapes are answered from
// the rows directly; everything else goes to the completer, and a failed
// or empty completion degrades to the row preview.
func (s *Synthesizer) Answer(ctx context.Context, in Input) Answer {
	if text, ok := Deterministic(in.Question, in.Result); ok {
		observability.ObserveAnswer(string(SourceDeterministic))
		return Answer{Text: text, Source: SourceDeterministic}
	}

	preview := Preview(in.Result.Columns, in.Result.Rows, prompt.PreviewRows)
	if s.completer != nil {
		messages := prompt.BuildAnswer(prompt.AnswerInput{
			Rules:    in.Rules,
			Schema:   in.Schema,
			SQL:      in.SQL,
			Preview:  preview,
			Columns:  in.Result.Columns,
			Question: in.Question,
		})
		text, err := s.completer.Complete(ctx, llm.Request{
			Messages:    messages,
			Temperature: s.temperature,
			Purpose:     "answer",
		})
		if err != nil {
			s.logger.WarnContext(ctx, "answer_generation_failed", slog.String("error", observability.PresentError(err)))
		} else if text = llm.StripCodeFence(text); text != "" {
			observability.ObserveAnswer(string(SourceGenerated))
			return Answer{Text: text, Source: SourceGenerated}
		}
	}

	observability.ObserveAnswer(string(SourcePreview))
	return Answer{Text: preview, Source: SourcePreview}
}

// Deterministic answers stock questions over a single units_in_stock column
// and random product samples, without calling the completer.
func Deterministic(question string, result query.Result) (string, bool) {
	q := rewrite.Lower(strings.TrimSpace(question))

	if strings.Contains(q, "stokta") && (strings.Contains(q, "ne kadar") || strings.Contains(q, "kaç")) {
		if len(result.Columns) == 1 && strings.EqualFold(result.Columns[0], "units_in_stock") {
			if result.Empty() {
				return "Bu ürüne ait stok bulunamadı.", true
			}
			return fmt.Sprintf("Stokta %s adet var.", FormatValue(result.Rows[0][0])), true
		}
	}

	if strings.Contains(q, "rastgele") && strings.Contains(q, "ürün") {
		nameIdx, priceIdx := -1, -1
		for i, column := range result.Columns {
			switch strings.ToLower(column) {
			case "product_name", "name":
				nameIdx = i
			case "unit_price", "price":
				priceIdx = i
			}
		}
		if nameIdx >= 0 && !result.Empty() {
			lines := []string{"Rastgele seçilen ürünler:"}
			for _, row := range result.Rows[:min(len(result.Rows), 3)] {
				if priceIdx >= 0 {
					lines = append(lines, fmt.Sprintf("- %s — Fiyat: %s", FormatValue(row[nameIdx]), FormatValue(row[priceIdx])))
					continue
				}
				lines = append(lines, "- "+FormatValue(row[nameIdx]))
			}
			return strings.Join(lines, "\n"), true
		}
	}
	return "", false
}

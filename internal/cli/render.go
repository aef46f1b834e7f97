package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/sorgu/sorgu/internal/answer"
	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/pipeline"
	"github.com/sorgu/sorgu/internal/prompt"
	"github.com/sorgu/sorgu/internal/retryplan"
	"github.com/sorgu/sorgu/internal/schema"
)

var (
	titleStyle   = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	labelStyle   = pterm.NewStyle(pterm.FgLightWhite, pterm.Bold)
	sqlStyle     = pterm.NewStyle(pterm.FgYellow)
	noticeStyle  = pterm.NewStyle(pterm.FgMagenta)
	errorStyle   = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	dividerWidth = 72
)

var strategyLabels = map[retryplan.Strategy]string{
	retryplan.StrategySubstring: "ILIKE dönüşümü",
	retryplan.StrategyTitleCase: "Title case",
	retryplan.StrategyLowerCase: "Küçük harf",
}

type asker interface {
	Ask(ctx context.Context, question string) (pipeline.Outcome, error)
}

func printHeader(out io.Writer) {
	rule := strings.Repeat("=", dividerWidth)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, titleStyle.Sprint("Türkçe Doğal Dilden PostgreSQL'e Sorgu ve Türkçe Cevap"))
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "Çıkmak için boş satır bırakıp Enter'a basın veya Ctrl+C")
	fmt.Fprintln(out)
}

// runLoop reads one question per line until an empty line, EOF or a
// cancelled context. Per-question failures are printed and the loop goes on.
func runLoop(ctx context.Context, session asker, in io.Reader, out io.Writer) error {
	lines, readErr := readLines(ctx, in)
	for {
		fmt.Fprint(out, labelStyle.Sprint("Soru (TR): "))
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Çıkılıyor...")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Çıkılıyor...")
			return <-readErr
		}
		question := strings.TrimSpace(line)
		if question == "" {
			fmt.Fprintln(out, "Çıkılıyor...")
			return nil
		}
		askOnce(ctx, session, question, out)
	}
}

// readLines feeds the lines of in to a channel so a blocked read does not
// hold up cancellation. The error channel receives exactly one value before
// lines is closed. A read still blocked after cancellation is abandoned.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func askOnce(ctx context.Context, session asker, question string, out io.Writer) bool {
	outcome, err := session.Ask(ctx, question)
	if err != nil {
		printFailure(out, outcome, err)
		return false
	}
	printOutcome(out, outcome)
	return true
}

func printOutcome(out io.Writer, outcome pipeline.Outcome) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Sprint("Üretilen SQL:"))
	fmt.Fprintln(out, sqlStyle.Sprint(outcome.SQL))
	fmt.Fprintln(out)

	for _, attempt := range outcome.Attempts {
		if attempt.Succeeded {
			fmt.Fprintf(out, "%s stratejisi başarılı: %s\n", strategyLabel(attempt.Strategy), attempt.SQL)
		}
	}
	if outcome.NoMatch() && len(outcome.Suggestions) > 0 {
		fmt.Fprintln(out, noticeStyle.Sprintf("'%s' bulunamadı. Benzer ürünler:", outcome.Term))
		for _, name := range outcome.Suggestions {
			fmt.Fprintf(out, "  - %s\n", name)
		}
		fmt.Fprintln(out, "Bu ürünlerden birini deneyebilirsiniz.")
		fmt.Fprintln(out)
	}

	if outcome.Answer.Source == answer.SourcePreview || strings.TrimSpace(outcome.Answer.Text) == "" {
		fmt.Fprintln(out, labelStyle.Sprint("Ham Sonuç (önizleme):"))
		fmt.Fprintln(out, renderTable(outcome))
	} else {
		fmt.Fprintln(out, labelStyle.Sprint("Cevap:"))
		fmt.Fprintln(out, outcome.Answer.Text)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", dividerWidth))
	fmt.Fprintln(out)
}

// renderTable draws the preview rows for the terminal. The plain pipe table
// in outcome.Preview is kept for prompts and is the fallback.
func renderTable(outcome pipeline.Outcome) string {
	result := outcome.Result
	if result.Empty() || len(result.Columns) == 0 {
		return answer.EmptyPreview
	}
	data := pterm.TableData{result.Columns}
	for _, row := range result.Rows[:min(len(result.Rows), prompt.PreviewRows)] {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = answer.FormatValue(value)
		}
		data = append(data, cells)
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return outcome.Preview
	}
	return rendered
}

func printFailure(out io.Writer, outcome pipeline.Outcome, err error) {
	message := observability.PresentError(err)
	switch failure.KindOf(err) {
	case failure.CompletionService:
		fmt.Fprintln(out, errorStyle.Sprint("SQL sorgusu üretilemedi: ")+message)
	case failure.Validation:
		if outcome.SQL != "" {
			fmt.Fprintln(out, labelStyle.Sprint("Üretilen SQL:"))
			fmt.Fprintln(out, sqlStyle.Sprint(outcome.SQL))
		}
		fmt.Fprintln(out, errorStyle.Sprint("Sorgu reddedildi: ")+message)
	case failure.Execution:
		fmt.Fprintln(out, labelStyle.Sprint("Üretilen SQL:"))
		fmt.Fprintln(out, sqlStyle.Sprint(outcome.SQL))
		fmt.Fprintln(out, errorStyle.Sprint("Sorgu çalıştırılırken hata: ")+message)
	case failure.SchemaUnavailable, failure.Configuration:
		fmt.Fprintln(out, errorStyle.Sprint("Bağlam/şema yüklenirken hata: ")+message)
	default:
		fmt.Fprintln(out, errorStyle.Sprint("Hata: ")+message)
	}
	fmt.Fprintln(out)
}

func printSchema(out io.Writer, resolved schema.Context) {
	source := "context belgesi"
	if resolved.Source == schema.SourceLive {
		source = "canlı veritabanı"
	}
	fmt.Fprintln(out, titleStyle.Sprint("Şema kaynağı: ")+source)
	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Sprint("Bağlam kuralları:"))
	fmt.Fprintln(out, resolved.Rules)
	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Sprint("Şema:"))
	fmt.Fprintln(out, resolved.Schema)
}

func strategyLabel(strategy retryplan.Strategy) string {
	if label, ok := strategyLabels[strategy]; ok {
		return label
	}
	return string(strategy)
}

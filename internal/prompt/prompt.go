// Package prompt builds the chat messages sent to the completion service.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sorgu/sorgu/internal/llm"
)

const (
	// MaxSchemaLineChars bounds a single schema line; longer lines are cut
	// and marked with " ...".
	MaxSchemaLineChars = 120
	// MaxSchemaLines bounds the number of schema lines in a prompt.
	MaxSchemaLines = 200
	// PreviewRows is how many result rows the answer prompt shows.
	PreviewRows = 10
)

type Example struct {
	Question string
	SQL      string
}

// Examples are the few-shot pairs of the generation prompt: substring
// search, random sampling and numeric filtering.
var Examples = []Example{
	{Question: "Chai stokta ne kadar var", SQL: "select units_in_stock from products where product_name ILIKE '%Chai%'"},
	{Question: "chai ürünü", SQL: "select * from products where product_name ILIKE '%chai%'"},
	{Question: "rastgele 3 ürün", SQL: "select product_name, unit_price from products order by random() limit 3"},
	{Question: "pahalı ürünler", SQL: "select product_name, unit_price from products where unit_price > 50 order by unit_price desc"},
}

// GenerationInput feeds BuildGeneration.
type GenerationInput struct {
	Rules        string
	Schema       string
	Question     string
	EntityColumn string
}

// BuildGeneration returns the system and user messages asking for exactly
// one line of read-only SQL.
func BuildGeneration(in GenerationInput) []llm.Message {
	column := in.EntityColumn
	if column == "" {
		column = "product_name"
	}

	var b strings.Builder
	b.WriteString("Aşağıdaki kurallara harfiyen uyarak yalnızca tek bir PostgreSQL sorgusu üret:\n")
	b.WriteString("- Tablo ve kolon adlarını şemada yazıldığı gibi (snake_case) kullan.\n")
	b.WriteString("- Kod bloğu, açıklama ya da doğal dil ekleme; cevabın tek satır SQL olsun.\n")
	b.WriteString("- Yalnızca SELECT veya WITH kullan. INSERT, UPDATE, DELETE ve DDL yasak.\n")
	b.WriteString("- Soru belirsizse en basit doğru SELECT'i seç (ör: en çok stoklu ürün -> order by units_in_stock desc).\n")
	fmt.Fprintf(&b, "- İsim aramalarında büyük/küçük harf duyarsız ILIKE kullan: %s ILIKE '%%arama%%'.\n", column)
	b.WriteString("- Örnekler:\n")
	for _, ex := range Examples {
		fmt.Fprintf(&b, "  %q -> %s\n", ex.Question, ex.SQL)
	}
	if rules := strings.TrimSpace(in.Rules); rules != "" {
		b.WriteString("\nBağlam kuralları:\n")
		b.WriteString(rules)
		b.WriteString("\n")
	}
	b.WriteString("\nŞema:\n")
	b.WriteString(CompactSchema(in.Schema))

	user := fmt.Sprintf("Kullanıcı sorusu (Türkçe): %s\n\nTek satır SELECT yaz. İsimler için ILIKE kullan. Öncesine ya da sonrasına açıklama veya kod bloğu ekleme.",
		strings.TrimSpace(in.Question))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.String()},
		{Role: llm.RoleUser, Content: user},
	}
}

// AnswerInput feeds BuildAnswer.
type AnswerInput struct {
	Rules    string
	Schema   string
	SQL      string
	Preview  string
	Columns  []string
	Question string
}

// BuildAnswer returns the messages asking for a short Turkish answer to the
// question given the executed SQL and a preview of its rows.
func BuildAnswer(in AnswerInput) []llm.Message {
	columns := "(kolon yok)"
	if len(in.Columns) > 0 {
		columns = strings.Join(in.Columns, ", ")
	}
	system := fmt.Sprintf(`Bir veri analizi asistanısın. Görevin:
- Ham SQL sonucunu Türkçe, kısa ve anlaşılır bir cevaba çevirmek.
- Bağlam kurallarına uymak.
- Sonuç boşsa bunu açıkça söylemek ve kullanıcıyı yönlendiren kısa bir not eklemek.
- Sayıları binlik ayraçla yazmak (ör: 1.250).
- Gereksiz uzatmamak; liste gerekiyorsa kısa ve okunaklı tutmak.

Bağlam kuralları (özet):
%s

Şema (özet):
%s`, strings.TrimSpace(in.Rules), CompactSchema(in.Schema))

	user := fmt.Sprintf(`Kullanıcı sorusu: %s
Üretilen SQL: %s
Kolonlar: %s
Önizleme (ilk %d satır):
%s

Lütfen Türkçe, kısa ve net nihai cevabı ver.`, strings.TrimSpace(in.Question), in.SQL, columns, PreviewRows, in.Preview)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

// CompactSchema drops blank lines, trims each line, cuts lines longer than
// MaxSchemaLineChars and keeps at most MaxSchemaLines lines.
func CompactSchema(schema string) string {
	lines := make([]string, 0, MaxSchemaLines)
	for _, line := range strings.Split(schema, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if runes := []rune(line); len(runes) > MaxSchemaLineChars {
			line = string(runes[:MaxSchemaLineChars]) + " ..."
		}
		lines = append(lines, line)
		if len(lines) == MaxSchemaLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

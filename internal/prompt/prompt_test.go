package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sorgu/sorgu/internal/llm"
)

func TestBuildGeneration(t *testing.T) {
	msgs := BuildGeneration(GenerationInput{
		Rules:    "Fiyatlar USD cinsindendir.",
		Schema:   "- products: product_id (smallint), product_name (character varying)",
		Question: "  Chai stokta ne kadar var  ",
	})
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Fatalf("BuildGeneration() roles = %#v", msgs)
	}
	system := msgs[0].Content
	for _, want := range []string{
		"select units_in_stock from products where product_name ILIKE '%Chai%'",
		"order by random() limit 3",
		"where unit_price > 50",
		"product_name ILIKE '%arama%'",
		"Fiyatlar USD cinsindendir.",
		"- products: product_id (smallint)",
	} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
	if !strings.Contains(msgs[1].Content, "Kullanıcı sorusu (Türkçe): Chai stokta ne kadar var\n") {
		t.Fatalf("user prompt = %q", msgs[1].Content)
	}
}

func TestBuildGenerationUsesEntityColumn(t *testing.T) {
	msgs := BuildGeneration(GenerationInput{Schema: "x", Question: "q", EntityColumn: "company_name"})
	if !strings.Contains(msgs[0].Content, "company_name ILIKE '%arama%'") {
		t.Fatalf("system prompt = %q", msgs[0].Content)
	}
}

func TestBuildAnswer(t *testing.T) {
	msgs := BuildAnswer(AnswerInput{
		Rules:    "kural",
		Schema:   "- products: product_name (text)",
		SQL:      "select product_name from products LIMIT 1000;",
		Preview:  "| product_name |\n|---|\n| Chai |",
		Columns:  []string{"product_name"},
		Question: "hangi ürünler var",
	})
	if len(msgs) != 2 {
		t.Fatalf("BuildAnswer() = %#v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "binlik ayraç") || !strings.Contains(msgs[0].Content, "Sonuç boşsa") {
		t.Fatalf("system prompt = %q", msgs[0].Content)
	}
	user := msgs[1].Content
	for _, want := range []string{"Kolonlar: product_name", "| Chai |", "Üretilen SQL: select product_name"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}

	empty := BuildAnswer(AnswerInput{Question: "q", Preview: "(sonuç yok)"})
	if !strings.Contains(empty[1].Content, "Kolonlar: (kolon yok)") {
		t.Fatalf("user prompt = %q", empty[1].Content)
	}
}

func TestCompactSchema(t *testing.T) {
	long := "- wide: " + strings.Repeat("c", 200)
	got := CompactSchema("\n  - a: x (int)  \n\n" + long + "\n")
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("CompactSchema() lines = %d", len(lines))
	}
	if lines[0] != "- a: x (int)" {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], " ...") || len(lines[1]) != MaxSchemaLineChars+4 {
		t.Fatalf("line 1 = %q (%d)", lines[1], len(lines[1]))
	}

	var b strings.Builder
	for i := 0; i < MaxSchemaLines+50; i++ {
		fmt.Fprintf(&b, "- t%d: c (int)\n", i)
	}
	if n := len(strings.Split(CompactSchema(b.String()), "\n")); n != MaxSchemaLines {
		t.Fatalf("CompactSchema() kept %d lines", n)
	}
}

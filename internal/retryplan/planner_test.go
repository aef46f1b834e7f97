package retryplan

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sorgu/sorgu/internal/query"
)

func TestCandidatesFollowPriorityOrder(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	got := planner.Candidates("select units_in_stock from products where product_name = 'chai'")
	want := []Candidate{
		{Strategy: StrategySubstring, SQL: "select units_in_stock from products where product_name ILIKE '%chai%'"},
		{Strategy: StrategyTitleCase, SQL: "select units_in_stock from products where product_name ILIKE '%Chai%'"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Candidates() = %#v, want %#v", got, want)
	}
}

func TestCandidatesRewriteWildcardedAndQualifiedFilters(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	got := planner.Candidates("select p.unit_price from products p where p.product_name ilike '%GUARANÁ fantástica%'")
	if len(got) != 3 {
		t.Fatalf("Candidates() = %#v", got)
	}
	if got[1].SQL != "select p.unit_price from products p where p.product_name ILIKE '%Guaraná Fantástica%'" {
		t.Fatalf("title case = %q", got[1].SQL)
	}
	if got[2].SQL != "select p.unit_price from products p where p.product_name ILIKE '%guaraná fantástica%'" {
		t.Fatalf("lower case = %q", got[2].SQL)
	}
}

func TestCandidatesKeepEscapedQuotes(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	got := planner.Candidates("select * from products where product_name = 'Sir Rodney''s Scones'")
	if len(got) == 0 || got[0].SQL != "select * from products where product_name ILIKE '%Sir Rodney''s Scones%'" {
		t.Fatalf("Candidates() = %#v", got)
	}
}

func TestCandidatesCaseTransformsKeepEscapedQuotes(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	got := planner.Candidates("select * from products where product_name = 'Chef Anton''s cajun'")
	want := []Candidate{
		{Strategy: StrategySubstring, SQL: "select * from products where product_name ILIKE '%Chef Anton''s cajun%'"},
		{Strategy: StrategyTitleCase, SQL: "select * from products where product_name ILIKE '%Chef Anton''s Cajun%'"},
		{Strategy: StrategyLowerCase, SQL: "select * from products where product_name ILIKE '%chef anton''s cajun%'"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Candidates() = %#v, want %#v", got, want)
	}
}

func TestCandidatesIgnoreOtherColumns(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	sql := "select * from customers where city = 'berlin'"
	if planner.Applies(sql) {
		t.Fatal("Applies() = true for a non-entity filter")
	}
	if got := planner.Candidates(sql); len(got) != 0 {
		t.Fatalf("Candidates() = %#v", got)
	}
}

func TestCandidatesUseConfiguredColumn(t *testing.T) {
	planner := NewPlanner(nil, Config{EntityTable: "suppliers", EntityColumn: "company_name"})
	if !planner.Applies("select * from suppliers where company_name = 'exotic liquids'") {
		t.Fatal("Applies() = false for the configured column")
	}
	if planner.Applies("select * from products where product_name = 'chai'") {
		t.Fatal("Applies() = true for a different column")
	}
}

func TestRecoverStopsAtFirstSuccess(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	var tried []string
	run := func(_ context.Context, sql string) (query.Result, error) {
		tried = append(tried, sql)
		if strings.Contains(sql, "'%chai%'") {
			return query.Result{Columns: []string{"units_in_stock"}, Rows: [][]any{{int64(39)}}}, nil
		}
		return query.Result{Columns: []string{"units_in_stock"}}, nil
	}

	outcome := planner.Recover(context.Background(), "chai stokta ne kadar var", "select units_in_stock from products where product_name = 'chai'", run)
	if !outcome.Recovered {
		t.Fatalf("Recovered = false, attempts = %#v", outcome.Attempts)
	}
	if len(tried) != 1 || len(outcome.Attempts) != 1 || outcome.Attempts[0].Strategy != StrategySubstring {
		t.Fatalf("attempts = %#v", outcome.Attempts)
	}
	if outcome.SQL != tried[0] || outcome.Result.Rows[0][0] != int64(39) {
		t.Fatalf("outcome = %#v", outcome)
	}
}

func TestRecoverFallsThroughFailedAttempts(t *testing.T) {
	planner := NewPlanner(nil, Config{})
	calls := 0
	run := func(_ context.Context, sql string) (query.Result, error) {
		calls++
		if calls == 1 {
			return query.Result{}, errors.New("syntax error")
		}
		return query.Result{Columns: []string{"product_name"}, Rows: [][]any{{"Chai"}}}, nil
	}

	outcome := planner.Recover(context.Background(), "chai", "select product_name from products where product_name = 'chai'", run)
	if !outcome.Recovered || len(outcome.Attempts) != 2 {
		t.Fatalf("outcome = %#v", outcome)
	}
	if outcome.Attempts[0].Err == nil || outcome.Attempts[0].Succeeded {
		t.Fatalf("first attempt = %#v", outcome.Attempts[0])
	}
	if outcome.Attempts[1].Strategy != StrategyTitleCase {
		t.Fatalf("second attempt = %#v", outcome.Attempts[1])
	}
}

func TestRecoverSuggestsSimilarNames(t *testing.T) {
	engine := &suggestionEngine{names: map[string][]string{
		"%chang%": {"Chang", "Chang Ale", "Chang Extra", "Changi", "Changa", "Changed"},
	}}
	planner := NewPlanner(engine, Config{})
	empty := func(context.Context, string) (query.Result, error) { return query.Result{Columns: []string{"x"}}, nil }

	outcome := planner.Recover(context.Background(), `"zzz" ya da "chang" ürününün fiyatı`, "select unit_price from products where product_name = 'zzz'", empty)
	if outcome.Recovered {
		t.Fatal("Recovered = true")
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("attempts = %#v", outcome.Attempts)
	}
	if outcome.Term != "chang" {
		t.Fatalf("Term = %q", outcome.Term)
	}
	if len(outcome.Suggestions) != 5 || outcome.Suggestions[0] != "Chang" {
		t.Fatalf("Suggestions = %#v", outcome.Suggestions)
	}
	first := engine.requests[0]
	if !strings.Contains(first.SQL, `FROM "products" WHERE "product_name" ILIKE $1`) {
		t.Fatalf("suggestion sql = %q", first.SQL)
	}
	if !reflect.DeepEqual(first.Args, []any{"%zzz%", "%zzz%", "%Zzz%"}) {
		t.Fatalf("suggestion args = %#v", first.Args)
	}
	if first.TimeoutMillis != 5000 {
		t.Fatalf("TimeoutMillis = %d", first.TimeoutMillis)
	}
}

func TestRecoverWithoutMatchesIsNotAnError(t *testing.T) {
	engine := &suggestionEngine{err: errors.New("store down")}
	planner := NewPlanner(engine, Config{})
	empty := func(context.Context, string) (query.Result, error) { return query.Result{}, nil }

	outcome := planner.Recover(context.Background(), "'yokürün' kaç lira", "select unit_price from products where product_name = 'yokürün'", empty)
	if outcome.Recovered || len(outcome.Suggestions) != 0 || outcome.Term != "" {
		t.Fatalf("outcome = %#v", outcome)
	}
}

func TestQuotedTerms(t *testing.T) {
	got := QuotedTerms(`"Chai" ve 'Chang' ile “Tofu” ve « »`)
	want := []string{"Chai", "Chang", "Tofu"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QuotedTerms() = %#v, want %#v", got, want)
	}
}

type suggestionEngine struct {
	names    map[string][]string
	err      error
	requests []query.Request
}

func (s *suggestionEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	s.requests = append(s.requests, request)
	if s.err != nil {
		return query.Result{}, s.err
	}
	pattern, _ := request.Args[0].(string)
	result := query.Result{Columns: []string{"product_name"}}
	for _, name := range s.names[pattern] {
		result.Rows = append(result.Rows, []any{name})
	}
	return result, nil
}

func (s *suggestionEngine) Ping(context.Context) error { return s.err }

package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/llm"
)

type fakeChat struct {
	reply    string
	err      error
	messages []llm.Message
	params   llm.Params
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, params llm.Params) (string, error) {
	f.messages = messages
	f.params = params
	return f.reply, f.err
}

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced", in: "```sql\nSELECT 1\n```", want: "SELECT 1;"},
		{name: "bare fence", in: "```\nSELECT a FROM t;\n```", want: "SELECT a FROM t;"},
		{name: "missing semicolon", in: "  SELECT COUNT(*) FROM aulas_praticas  ", want: "SELECT COUNT(*) FROM aulas_praticas;"},
		{name: "doubled semicolon kept", in: "SELECT 1;;", want: "SELECT 1;;"},
		{name: "spaced terminator kept", in: "SELECT 1 ;", want: "SELECT 1 ;"},
		{name: "empty", in: "  ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanSQL(tt.in); got != tt.want {
				t.Fatalf("CleanSQL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanSQLIsIdempotent(t *testing.T) {
	inputs := []string{
		"SELECT 1;",
		"SELECT professor, COUNT(*) FROM aulas_praticas WHERE YEAR(data) = 2024 GROUP BY professor;",
		"```sql\nSELECT 1\n```",
	}
	for _, in := range inputs {
		once := CleanSQL(in)
		if twice := CleanSQL(once); twice != once {
			t.Fatalf("CleanSQL not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestCleanSQLLeavesTerminatedSQLUnchanged(t *testing.T) {
	inputs := []string{
		"SELECT 1;",
		"SELECT 1 ;",
		"SELECT a FROM t WHERE b = 'x' ;",
		"SELECT professor FROM aulas_praticas WHERE sala = 'B;2';",
	}
	for _, in := range inputs {
		if got := CleanSQL(in); got != in {
			t.Fatalf("CleanSQL(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestSynthesizeSendsSchemaAndQuestion(t *testing.T) {
	chat := &fakeChat{reply: "```sql\nSELECT COUNT(*) FROM aulas_praticas WHERE YEAR(data) = 2024\n```"}
	s, err := NewSynthesizer(chat, Config{Dialect: database.MySQL, Table: "aulas_praticas"}, nil)
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}

	schemaText := "CREATE TABLE `aulas_praticas` (\n  `data` datetime\n);"
	got, err := s.Synthesize(context.Background(), "How many classes in 2024?", schemaText)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != "SELECT COUNT(*) FROM aulas_praticas WHERE YEAR(data) = 2024;" {
		t.Fatalf("Synthesize() = %q", got)
	}
	if _, err := sqlparser.NewTestParser().Parse(got); err != nil {
		t.Fatalf("synthesized SQL does not parse: %v", err)
	}

	if len(chat.messages) != 2 {
		t.Fatalf("messages = %+v", chat.messages)
	}
	system := chat.messages[0]
	if system.Role != llm.RoleSystem || !strings.Contains(system.Content, schemaText) {
		t.Fatalf("system message = %+v", system)
	}
	if !strings.Contains(system.Content, "YEAR(column)") || !strings.Contains(system.Content, "ONLY the SQL") {
		t.Fatalf("system message missing rules: %q", system.Content)
	}
	if want := "-- User Question: How many classes in 2024?\n-- SQL Query:"; chat.messages[1].Content != want {
		t.Fatalf("user message = %q, want %q", chat.messages[1].Content, want)
	}
	if chat.params.Temperature != 0 || chat.params.MaxTokens != DefaultMaxTokens {
		t.Fatalf("params = %+v", chat.params)
	}
	if len(chat.params.Stop) != 2 || chat.params.Stop[0] != "--" || chat.params.Stop[1] != ";" {
		t.Fatalf("stop = %v", chat.params.Stop)
	}
}

func TestSynthesizeUsesDialectYearHint(t *testing.T) {
	messages := BuildMessages(database.PostgreSQL, "", "q", "schema")
	if !strings.Contains(messages[0].Content, "EXTRACT(YEAR FROM column)") {
		t.Fatalf("system message = %q", messages[0].Content)
	}
	if !strings.Contains(messages[0].Content, "PostgreSQL") {
		t.Fatalf("system message = %q", messages[0].Content)
	}
}

func TestSynthesizeWrapsModelError(t *testing.T) {
	boom := errors.New("model offline")
	s, _ := NewSynthesizer(&fakeChat{err: boom}, Config{}, nil)
	if _, err := s.Synthesize(context.Background(), "q", "schema"); !errors.Is(err, boom) {
		t.Fatalf("Synthesize() error = %v, want %v", err, boom)
	}
}

func TestNewSynthesizerRequiresModel(t *testing.T) {
	if _, err := NewSynthesizer(nil, Config{}, nil); err == nil {
		t.Fatal("expected error for nil chat model")
	}
}

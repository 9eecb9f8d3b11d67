package database

import "testing"

func TestDialectFor(t *testing.T) {
	cases := map[string]string{
		"mysql":  "MySQL",
		"pgx":    "PostgreSQL",
		"duckdb": "DuckDB",
	}
	for driver, want := range cases {
		d, err := DialectFor(driver)
		if err != nil {
			t.Fatalf("DialectFor(%q) error = %v", driver, err)
		}
		if d.Name != want {
			t.Fatalf("DialectFor(%q).Name = %q, want %q", driver, d.Name, want)
		}
	}
	if _, err := DialectFor("sqlite"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := MySQL.QuoteIdent("aulas`x"); got != "`aulas``x`" {
		t.Fatalf("MySQL.QuoteIdent() = %q", got)
	}
	if got := PostgreSQL.QuoteIdent(`a"b`); got != `"a""b"` {
		t.Fatalf("PostgreSQL.QuoteIdent() = %q", got)
	}
	if got := (Dialect{}).QuoteIdent("t"); got != "`t`" {
		t.Fatalf("zero Dialect QuoteIdent() = %q", got)
	}
}

func TestSampleQuery(t *testing.T) {
	if got := MySQL.SampleQuery("aulas", 5); got != "SELECT * FROM `aulas` ORDER BY RAND() LIMIT 5" {
		t.Fatalf("MySQL.SampleQuery() = %q", got)
	}
	if got := DuckDB.SampleQuery("events", 3); got != `SELECT * FROM "events" ORDER BY random() LIMIT 3` {
		t.Fatalf("DuckDB.SampleQuery() = %q", got)
	}
}

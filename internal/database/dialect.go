package database

import (
	"fmt"
	"strings"
)

// Dialect captures the few places where the supported engines disagree:
// metadata lookup, identifier quoting, random ordering and date functions.
type Dialect struct {
	Name        string
	SchemaQuery string
	RandomFunc  string
	YearHint    string
	quote       string
}

var (
	MySQL = Dialect{
		Name: "MySQL",
		SchemaQuery: `
SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = ?
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
		RandomFunc: "RAND()",
		YearHint:   "For DATETIME or DATE columns, compare years with the `YEAR(column)` function.",
		quote:      "`",
	}

	PostgreSQL = Dialect{
		Name: "PostgreSQL",
		SchemaQuery: `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_catalog = $1 AND table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_name, ordinal_position`,
		RandomFunc: "RANDOM()",
		YearHint:   "For timestamp or date columns, compare years with `EXTRACT(YEAR FROM column)`.",
		quote:      `"`,
	}

	DuckDB = Dialect{
		Name: "DuckDB",
		SchemaQuery: `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE (table_catalog = ? OR table_catalog = current_database())
  AND table_schema = current_schema()
ORDER BY table_name, ordinal_position`,
		RandomFunc: "random()",
		YearHint:   "For timestamp or date columns, compare years with the `year(column)` function.",
		quote:      `"`,
	}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL, nil
	case "pgx":
		return PostgreSQL, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) QuoteIdent(name string) string {
	q := d.quote
	if q == "" {
		q = "`"
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// SampleQuery selects up to limit pseudo-randomly ordered rows of table.
func (d Dialect) SampleQuery(table string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d", d.QuoteIdent(table), d.RandomFunc, limit)
}

// Package schema reads table and column metadata once and renders it as
// pseudo-DDL for prompt grounding.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/askdb/askdb/internal/database"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema is read-only after construction. Build a new one to refresh.
type Schema struct {
	tables  []Table
	index   map[string]int
	dialect database.Dialect
}

func New(dialect database.Dialect, tables []Table) *Schema {
	s := &Schema{
		tables:  make([]Table, 0, len(tables)),
		index:   make(map[string]int, len(tables)),
		dialect: dialect,
	}
	for _, table := range tables {
		s.add(table.Name, table.Columns...)
	}
	return s
}

func (s *Schema) add(table string, columns ...Column) {
	i, ok := s.index[table]
	if !ok {
		i = len(s.tables)
		s.index[table] = i
		s.tables = append(s.tables, Table{Name: table})
	}
	s.tables[i].Columns = append(s.tables[i].Columns, columns...)
}

// Load issues a single metadata query scoped to databaseName. Columns keep the
// order the engine reports them in.
func Load(ctx context.Context, db *sqlx.DB, dialect database.Dialect, databaseName string) (*Schema, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: no connection", database.ErrConnection)
	}

	rows, err := db.QueryContext(ctx, dialect.SchemaQuery, databaseName)
	if err != nil {
		return nil, fmt.Errorf("query schema of %q: %w", databaseName, err)
	}
	defer func() { _ = rows.Close() }()

	s := New(dialect, nil)
	for rows.Next() {
		var table, column, columnType string
		if err := rows.Scan(&table, &column, &columnType); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		s.add(table, Column{Name: column, Type: columnType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return s, nil
}

func (s *Schema) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for _, table := range s.tables {
		names = append(names, table.Name)
	}
	return names
}

func (s *Schema) Table(name string) (Table, bool) {
	i, ok := s.index[name]
	if !ok {
		return Table{}, false
	}
	table := s.tables[i]
	table.Columns = append([]Column(nil), table.Columns...)
	return table, true
}

// Render returns a CREATE TABLE block for name, or a comment placeholder when
// the table is unknown. It never fails: the output feeds a prompt.
func (s *Schema) Render(name string) string {
	table, ok := s.Table(name)
	if !ok {
		return fmt.Sprintf("-- Table '%s' not found.", name)
	}

	columns := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		columns = append(columns, fmt.Sprintf("  %s %s", s.dialect.QuoteIdent(column.Name), column.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", s.dialect.QuoteIdent(table.Name), strings.Join(columns, ",\n"))
}

// RenderAll renders every table, separated by blank lines.
func (s *Schema) RenderAll() string {
	blocks := make([]string, 0, len(s.tables))
	for _, table := range s.tables {
		blocks = append(blocks, s.Render(table.Name))
	}
	return strings.Join(blocks, "\n\n")
}

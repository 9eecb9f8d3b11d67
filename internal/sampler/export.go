package sampler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/storage"
)

const ParquetContentType = "application/vnd.apache.parquet"

// Cell is one value of a sampled row in long format.
type Cell struct {
	Table  string `parquet:"table"`
	Row    int64  `parquet:"row"`
	Column string `parquet:"column"`
	Value  string `parquet:"value"`
	Null   bool   `parquet:"null"`
}

// Cells flattens snapshot into cells ordered by table, row and column name.
func Cells(snapshot Snapshot) []Cell {
	tables := make([]string, 0, len(snapshot))
	for table := range snapshot {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var cells []Cell
	for _, table := range tables {
		for rowIndex, record := range snapshot[table] {
			columns := make([]string, 0, len(record))
			for column := range record {
				columns = append(columns, column)
			}
			sort.Strings(columns)
			for _, column := range columns {
				value := record[column]
				cells = append(cells, Cell{
					Table:  table,
					Row:    int64(rowIndex),
					Column: column,
					Value:  query.FormatValue(value),
					Null:   value == nil,
				})
			}
		}
	}
	return cells
}

func EncodeParquet(snapshot Snapshot) ([]byte, error) {
	cells := Cells(snapshot)
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Cell](buf)
	if len(cells) > 0 {
		if _, err := writer.Write(cells); err != nil {
			return nil, fmt.Errorf("write parquet cells: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

type ExportTarget struct {
	Path  string
	Store storage.ObjectStore
	Key   string
}

func (t ExportTarget) Enabled() bool {
	return t.Path != "" || (t.Store != nil && t.Key != "")
}

// Export encodes snapshot once and writes it to every configured destination.
func Export(ctx context.Context, snapshot Snapshot, target ExportTarget) error {
	if !target.Enabled() {
		return nil
	}
	data, err := EncodeParquet(snapshot)
	if err != nil {
		return err
	}

	if target.Path != "" {
		if dir := filepath.Dir(target.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create export dir: %w", err)
			}
		}
		if err := os.WriteFile(target.Path, data, 0o644); err != nil {
			return fmt.Errorf("write snapshot %q: %w", target.Path, err)
		}
	}
	if target.Store != nil && target.Key != "" {
		if _, err := target.Store.Put(ctx, target.Key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: ParquetContentType}); err != nil {
			return fmt.Errorf("upload snapshot: %w", err)
		}
	}
	return nil
}

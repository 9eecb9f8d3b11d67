package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FormatValue renders one cell for a tab-separated block. NULL becomes the
// empty string; tabs and newlines are escaped.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	case time.Time:
		s = val.Format(time.RFC3339)
	case bool:
		s = fmt.Sprintf("%t", val)
	case []any, map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(raw)
		}
	default:
		s = fmt.Sprintf("%v", val)
	}

	s = strings.ReplaceAll(s, "\t", "\\t")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	return s
}

// HeaderTSV returns the column names joined by tabs.
func (r Result) HeaderTSV() string {
	return strings.Join(r.Columns, "\t")
}

// RowsTSV returns one tab-separated line per row.
func (r Result) RowsTSV() string {
	lines := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		values := make([]string, len(row))
		for i, value := range row {
			values[i] = FormatValue(value)
		}
		lines = append(lines, strings.Join(values, "\t"))
	}
	return strings.Join(lines, "\n")
}

// TSV returns the header followed by every row.
func (r Result) TSV() string {
	if len(r.Columns) == 0 {
		return ""
	}
	rows := r.RowsTSV()
	if rows == "" {
		return r.HeaderTSV()
	}
	return r.HeaderTSV() + "\n" + rows
}

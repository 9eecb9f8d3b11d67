// Package query runs model-generated statements against the database under a
// read-only allow-list.
package query

import (
	"errors"
	"fmt"
	"time"
)

// ErrReadOnly is returned for any statement that does not start with SELECT.
var ErrReadOnly = errors.New("only SELECT queries are allowed")

// ExecutionError reports a statement that passed the allow-list but failed on
// the database.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

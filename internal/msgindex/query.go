package msgindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotSelect is returned by QryField when sqlText's first non-whitespace
// token is not SELECT.
var ErrNotSelect = errors.New("only SELECT queries are allowed")

// QryField executes a read-only SELECT against the index's backing table
// and returns each row as a tuple of column values, in column order. Any
// statement whose first token is not (case-insensitively) SELECT is
// rejected with ErrNotSelect before it reaches the database.
func (idx *Index) QryField(ctx context.Context, sqlText string, params []any) ([][]any, error) {
	if !isSelect(sqlText) {
		return nil, ErrNotSelect
	}

	rows, err := idx.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func isSelect(sqlText string) bool {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	return strings.EqualFold(fields[0], "SELECT")
}

package main

import (
	"fmt"
	"strings"
)

// selectQuery is the parsed form of the single supported statement shape,
// SELECT col1, col2 FROM table. No WHERE, JOIN or GROUP BY.
type selectQuery struct {
	table   string
	columns []string
}

// parseSelect parses a restricted SELECT statement. The whole input is
// upper-cased before splitting, so parsing is case-insensitive and every
// identifier comes out upper-cased. Square brackets and double quotes around
// identifiers are stripped.
func parseSelect(sql string) (selectQuery, error) {
	parts := strings.Split(strings.ToUpper(sql), " FROM ")
	if len(parts) != 2 {
		return selectQuery{}, fmt.Errorf("%w: use 'SELECT col1, col2 FROM table'", errBadQuery)
	}

	table := strings.Trim(strings.TrimSpace(parts[1]), `[]"`)
	columnClause := strings.TrimSpace(strings.ReplaceAll(parts[0], "SELECT", ""))

	var columns []string
	for _, col := range strings.Split(columnClause, ",") {
		columns = append(columns, strings.Trim(strings.TrimSpace(col), `[]"`))
	}
	return selectQuery{table: table, columns: columns}, nil
}

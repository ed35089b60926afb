package main

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// record is one result row: a column order plus the cell values keyed by
// column name. Maps alone cannot carry the order the CSV header needs.
type record struct {
	cols   []string
	fields map[string]string
}

// newRecord zips columns with values. Missing values render blank; surplus
// values are dropped.
func newRecord(cols, vals []string) record {
	fields := make(map[string]string, len(cols))
	for i, col := range cols {
		if i < len(vals) {
			fields[col] = vals[i]
		} else {
			fields[col] = ""
		}
	}
	return record{cols: cols, fields: fields}
}

// recordsToCSV serializes records as CSV text. The header is the first
// record's column order; an empty input yields an empty string with no
// header. A record whose key set differs from the header is rejected.
func recordsToCSV(recs []record) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}

	header := recs[0].cols
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return "", err
	}

	row := make([]string, len(header))
	for i, r := range recs {
		if len(r.fields) != len(header) {
			return "", fmt.Errorf("record %d has %d fields, header has %d", i, len(r.fields), len(header))
		}
		for j, col := range header {
			v, ok := r.fields[col]
			if !ok {
				return "", fmt.Errorf("record %d is missing field %q", i, col)
			}
			row[j] = v
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

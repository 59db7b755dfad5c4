package database

import "fmt"

// Collect drains rows, decoding each one with scan, and always closes rows.
// The returned slice is non-nil (empty on zero rows).
func Collect[T any](rows Rows, scan func(Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ScanRows reads all rows into column-name keyed maps. Used for ad-hoc
// probes where no typed record exists.
func ScanRows(rows Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read column names: %w", err)
	}

	return Collect(rows, func(r Rows) (map[string]any, error) {
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dest[i]
		}
		return row, nil
	})
}

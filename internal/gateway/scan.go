package gateway

import (
	"database/sql"

	"github.com/jsguru-git/api/internal/schema"
)

// scanRowWithColumns scans a single row with known column order
func scanRowWithColumns(row *sql.Row, columns []string) (schema.Record, error) {
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := row.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	record := make(schema.Record, len(columns))
	for i, col := range columns {
		record[col] = normalizeValue(values[i])
	}
	return record, nil
}

// scanRows scans multiple rows into records
func scanRows(rows *sql.Rows) ([]schema.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []schema.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(schema.Record, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// normalizeValue converts driver byte slices to strings so records compare
// and serialize the same regardless of driver
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

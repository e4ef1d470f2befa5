package record

import (
	"database/sql"
	"strconv"
	"time"
)

// Row is a single record projected from a result set, keyed by column name.
type Row map[string]any

// ScanRows projects every result row into a Row, converting byte slices to
// strings so values survive the driver reusing its buffers.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// String returns the value as a string, or "" when absent or NULL.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Int returns the value as an int, tolerating the numeric types drivers use.
func (r Row) Int(key string) int {
	switch v := r[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(v))
		return n
	default:
		return 0
	}
}

// Float64 returns the value as a float64; numeric columns arrive from the
// driver as text.
func (r Row) Float64(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	default:
		return 0
	}
}

// Bool returns the value as a bool.
func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "t" || v == "1"
	case int64:
		return v != 0
	default:
		return false
	}
}

// Time returns the value as a time.Time, or the zero time when absent.
func (r Row) Time(key string) time.Time {
	if v, ok := r[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

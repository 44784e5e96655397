package sproc

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Table is a fully materialized tabular result: ordered named columns and
// ordered rows. It is the universal shape returned by Query and consumed by
// the mapping functions; once returned it is owned by the caller.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// readTable drains rows into a Table. Cell values are whatever the driver
// produced, except []byte which is copied into a string so cells stay valid
// after the next Scan.
func readTable(rows *sql.Rows) (*Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	t := &Table{Columns: append([]string(nil), cols...)}
	for rows.Next() {
		cells := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range cells {
			dests[i] = &cells[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		for i, v := range cells {
			if b, ok := v.([]byte); ok {
				cells[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// cellString renders a cell as text. ok is false for NULL cells.
func cellString(v any) (s string, ok bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(x), true
	}
}

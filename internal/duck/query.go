package duck

import (
	"context"
	"database/sql"
	"math/big"

	duckdb "github.com/duckdb/duckdb-go/v2"
)

// Result is the tabular outcome of one statement: column names and rows in
// the order the engine produced them.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// Query runs one statement against an acquired handle. Exactly one execution
// attempt, no internal retries; errors come back classified.
func Query(ctx context.Context, db *sql.DB, query string) (Result, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, Classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, Classify(err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return Result{}, Classify(err)
		}

		row := make([]any, len(columns))
		for i, val := range values {
			row[i] = boxValue(val)
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return Result{}, Classify(err)
	}

	return Result{
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}

// boxValue narrows engine-native values to the serializable scalar set:
// null, bool, integer, float, text, date/time, blob.
func boxValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case *big.Int:
		return v.String()
	case big.Int:
		return v.String()
	case duckdb.Decimal:
		return v.Float64()
	default:
		return val
	}
}

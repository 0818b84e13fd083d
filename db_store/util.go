package db_store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

func closeRows(rows *sqlx.Rows, origErr error) error {
	closeErr := rows.Close()
	if origErr != nil {
		closeErr = origErr
	}
	return closeErr
}

// queryAll struct-scans every row of 'query' into a new T.
func queryAll[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			err = nil
		}
		return nil, err
	}

	results := make([]*T, 0, 32)

	for rows.Next() {
		var result T

		if err := rows.StructScan(&result); err != nil {
			return nil, closeRows(rows, err)
		}

		results = append(results, &result)
	}

	return results, closeRows(rows, rows.Err())
}

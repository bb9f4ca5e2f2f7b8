package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound turns sql.ErrNoRows into a nil result. Find* methods use it
// so that callers can tell "absent" apart from a failed query. Inserts with
// ON CONFLICT DO NOTHING ... RETURNING land here too when the row was
// skipped.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Touched reports whether an UPDATE or DELETE matched at least one row.
func Touched(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

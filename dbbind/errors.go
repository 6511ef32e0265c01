package dbbind

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoRows is returned when a single-row contract yields zero rows.
var ErrNoRows = errors.New("rowbind: no row was found")

// ErrMultipleRows is returned when an at-most-one-row contract yields more
// than one row.
var ErrMultipleRows = errors.New("rowbind: multiple rows where at most one was expected")

// ErrInvalidEntity is returned when a destination type cannot be
// materialized: it is not a struct, a registered constructor is malformed,
// or an enum handler was built from inconsistent metadata.
var ErrInvalidEntity = errors.New("rowbind: invalid entity type")

// ErrHandlerContract is returned when a registered type handler produced a
// value inconsistent with its target type.
var ErrHandlerContract = errors.New("rowbind: type handler contract violation")

// ErrNoTransaction is returned when commit or rollback is requested on a
// session that has no active transaction.
var ErrNoTransaction = errors.New("rowbind: no active transaction")

// ErrNoMoreResults is returned by GridReader.Read when the reader has been
// advanced past the last result set.
var ErrNoMoreResults = errors.New("rowbind: no more result sets")

// NotFound returns true if err is a no-row error.
// This error is returned by QuerySingle and GridReader.ReadSingle if there
// were no rows.
func NotFound(err error) bool {
	return errors.Is(err, ErrNoRows)
}

// MultipleRows returns true if err is a multiple-row violation of a
// single-row contract.
func MultipleRows(err error) bool {
	return errors.Is(err, ErrMultipleRows)
}

// wrapDriverErr attaches the SQL and the bound parameter names to an error
// surfaced by the driver.
func wrapDriverErr(err error, sql string, paramNames []string) error {
	if len(paramNames) == 0 {
		return fmt.Errorf("rowbind: driver failure executing %q: %w", sql, err)
	}
	return fmt.Errorf("rowbind: driver failure executing %q (params: %s): %w",
		sql, strings.Join(paramNames, ", "), err)
}

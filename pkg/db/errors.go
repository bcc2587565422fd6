package db

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205
)

// IsDuplicateEntry reports whether the error is a unique-constraint violation.
func IsDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDuplicateEntry
	}
	if err == nil {
		return false
	}
	// SQLite (dev/test) reports constraint failures as plain strings.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsTransient reports whether the error is worth retrying: deadlocks, lock
// timeouts, cancelled contexts from store call timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrLockDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}

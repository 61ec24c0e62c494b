package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const pqForeignKeyViolation = "23503"

// IsForeignKeyViolation checks if an error is a PostgreSQL foreign key violation
// If constraint is empty, it returns true for any foreign key violation
// If constraint is specified, it only returns true for that specific constraint
func IsForeignKeyViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	if string(pqErr.Code) != pqForeignKeyViolation {
		return false
	}

	return constraint == "" || pqErr.Constraint == constraint
}

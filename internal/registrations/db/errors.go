package db

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// IsUniqueViolation recognizes unique-index violations from PostgreSQL and
// from the SQLite driver used in tests.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

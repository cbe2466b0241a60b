package database

import (
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// MockPool returns a pgxmock pool that stands in for DBTX in repository and
// migration tests. The pool is closed when the test ends; checking
// ExpectationsWereMet is left to the test.
func MockPool(t testing.TB) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// Package dbtest provides an in-memory SQLite database with the full schema
// for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"ms-fest/internal/database"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func NewDB(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// A single connection keeps the in-memory database shared and
	// serializes transactions.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, database.CreateSchema(context.Background(), db))

	t.Cleanup(func() { db.Close() })
	return db
}

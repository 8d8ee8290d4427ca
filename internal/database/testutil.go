package database

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// testDatabaseEnv names the variable that opts a run into Postgres tests.
const testDatabaseEnv = "TEST_DATABASE_URL"

var shared struct {
	once sync.Once
	pool *pgxpool.Pool
	err  error
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()

	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skip(testDatabaseEnv + " not set, skipping integration test")
	}
	return url
}

// TestDB opens a private, unmigrated pool that is closed with the test.
func TestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := Connect(context.Background(), testDatabaseURL(t))
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// TestPool returns the process-wide migrated pool.
func TestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := testDatabaseURL(t)
	shared.once.Do(func() {
		ctx := context.Background()
		if shared.pool, shared.err = Connect(ctx, url); shared.err != nil {
			return
		}
		shared.err = RunMigrations(ctx, shared.pool)
	})
	if shared.err != nil {
		t.Fatalf("failed to set up test database: %v", shared.err)
	}
	return shared.pool
}

// TestTx opens a transaction on the shared pool and rolls it back when the
// test ends, so repository tests never see each other's rows:
//
//	claims := repository.NewClaimRepository(database.TestTx(t))
func TestTx(t *testing.T) PGXDB {
	t.Helper()

	tx, err := TestPool(t).Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

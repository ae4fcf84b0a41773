// Package testutil provides shared test infrastructure, primarily the
// throwaway PostgreSQL container the store integration tests run against.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bytesec/byte/db"
	"github.com/bytesec/byte/internal/log"
)

// TestDB wraps an isolated PostgreSQL instance with the full schema applied.
type TestDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, applies all
// migrations, and registers cleanup with t. Tests that cannot reach a
// container runtime should be skipped with testing.Short.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("byte_test"),
		postgres.WithUsername("byte_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	if err := db.Migrate(connStr, log.NewNop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping database: %v", err)
	}

	return &TestDB{Pool: pool, ConnStr: connStr}
}

// Package testutil provides testing utilities for the wareflow backend:
// a migrated PostgreSQL testcontainer, sqlmock and publisher mocks,
// stock-in fixtures and HTTP helpers.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wareflow/wareflow-backend/pkg/database"
)

const (
	testDatabase = "wareflow_stockin_test"
	testUser     = "test"
	testPassword = "test"
)

// PostgresContainer is a throwaway PostgreSQL with the stock-in schema
type PostgresContainer struct {
	container *postgres.PostgresContainer
	DSN       string
}

// StartPostgres starts a container and applies the embedded migrations.
// WAREFLOW_TEST_POSTGRES_IMAGE overrides the image.
func StartPostgres(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	image := GetEnvOrDefault("WAREFLOW_TEST_POSTGRES_IMAGE", "postgres:16-alpine")

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(image),
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	pc := &PostgresContainer{container: container}
	pc.DSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pc.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", pc.DSN)
	if err != nil {
		pc.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := database.Migrate(ctx, db.DB, "up"); err != nil {
		db.Close()
		pc.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return pc, db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.container.Terminate(ctx)
}

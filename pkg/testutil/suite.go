package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// stockInTables lists the tables truncated between tests, children first
var stockInTables = []string{
	"inventory",
	"batch_items",
	"boxes",
	"processed_batches",
	"stock_in",
	"locations",
	"warehouses",
	"products",
}

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite with the
// stock-in schema applied. Call this in TestMain to set up shared test
// infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//
//	    suite, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    code := m.Run()
//	    testutil.TerminateContainer(ctx)
//	    os.Exit(code)
//	}
//
//	func TestSomething(t *testing.T) {
//	    ctx := context.Background()
//	    suite.Reset(t, ctx)
//	    seed := suite.SeedStockIn(t, ctx, 6)
//	    // ... run tests against seed
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, globalDB, containerErr = StartPostgres(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Reset truncates every stock-in table so a test starts from an empty store
func (s *IntegrationSuite) Reset(t *testing.T, ctx context.Context) {
	t.Helper()

	for _, table := range stockInTables {
		if _, err := s.RawDB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// SeedStockIn inserts a product, a warehouse with two locations and a
// pending stock-in request for boxes boxes.
func (s *IntegrationSuite) SeedStockIn(t *testing.T, ctx context.Context, boxes int) *StockInSeed {
	t.Helper()

	seed := s.Fixtures.StockInSeed(boxes)
	if err := InsertStockInSeed(ctx, s.RawDB, seed); err != nil {
		t.Fatalf("failed to seed stock-in: %v", err)
	}
	return seed
}

// Cleanup cleans up all test resources
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	// The container is shared; TerminateContainer removes it.
	return s.DB.Close()
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

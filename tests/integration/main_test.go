package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
)

var testDB *TestDB

// TestMain shares one container across the repository suites; each test
// truncates the tables it touches.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("skipping integration tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Printf("failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	if err := testDB.Teardown(ctx); err != nil {
		fmt.Printf("failed to tear down test database: %v\n", err)
	}
	os.Exit(code)
}

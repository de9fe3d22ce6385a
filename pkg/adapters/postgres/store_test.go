package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aretw0/fable/pkg/adapters/postgres"
	"github.com/aretw0/fable/pkg/ports"
	"github.com/stretchr/testify/require"
)

// Set FABLE_TEST_POSTGRES_DSN to run against a real database.
func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("FABLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FABLE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	table := fmt.Sprintf("fable_test_%d", time.Now().UnixNano())

	store, err := postgres.Connect(ctx, dsn, postgres.WithTable(table))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.DropSchema(context.Background())
		store.Close()
	})

	ports.RunStorageContract(t, store)
}

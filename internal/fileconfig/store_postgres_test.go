//go:build integration || e2e
// +build integration e2e

package fileconfig

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgresContainer(t *testing.T) string {
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("servingcore"),
		postgres.WithUsername("servingcore"),
		postgres.WithPassword("servingcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestPostgresIndex_RecordAndListGenerations(t *testing.T) {
	connStr := startPostgresContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	idx, err := NewPostgresIndex(ctx, PostgresConfig{URL: connStr, MaxConnections: 5, ConnectTimeout: 10 * time.Second}, nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.RecordPublished(ctx, testSnapshot(1)))
	require.NoError(t, idx.RecordPublished(ctx, testSnapshot(2)))

	records, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, SerialNum(2), records[0].Serial)
	assert.Equal(t, SerialNum(1), records[1].Serial)
}

func TestPostgresIndex_ForgetRemovesGeneration(t *testing.T) {
	connStr := startPostgresContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	idx, err := NewPostgresIndex(ctx, PostgresConfig{URL: connStr, MaxConnections: 5, ConnectTimeout: 10 * time.Second}, nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.RecordPublished(ctx, testSnapshot(1)))
	require.NoError(t, idx.Forget(ctx, 1))

	records, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

//go:build integration

package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/steemit/commentd/pkg/config"
)

func TestPostgresCommentRepository(t *testing.T) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "comments",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "starting postgres container")
	defer postgresC.Terminate(ctx)

	host, err := postgresC.Host(ctx)
	require.NoError(t, err)
	port, err := postgresC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := "postgres://user:password@" + host + ":" + port.Port() + "/comments?sslmode=disable"
	database, err := New(&config.DatabaseConfig{Driver: "postgres", URL: dsn}, "ERROR")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate(ctx))

	repo := NewCommentRepository(NewRepository(database.DB, 0))

	parent := newComment("hello-world", 1000)
	require.NoError(t, repo.Create(ctx, parent))

	reply := newComment("hello-world", 2000)
	reply.ParentID = sql.NullInt64{Int64: parent.ID, Valid: true}
	require.NoError(t, repo.Create(ctx, reply))

	comments, err := repo.ListBySlug(ctx, "hello-world", 1, 20)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, reply.ID, comments[0].ID, "newest first")
	assert.Equal(t, parent.ID, comments[0].ParentID.Int64)
	assert.Equal(t, "<p><strong>hi</strong></p>", comments[1].BodyHTML)

	longSlug := strings.Repeat("s", 300)
	require.NoError(t, repo.Create(ctx, newComment(longSlug, 3000)), "slugs are not length limited")
	long, err := repo.ListBySlug(ctx, longSlug, 1, 20)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.Equal(t, longSlug, long[0].Slug)

	assert.NoError(t, database.Health(ctx))
}

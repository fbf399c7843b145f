//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/migrate"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/repository"
)

// setupDB starts a disposable PostgreSQL container and applies the migrations.
func setupDB(t *testing.T) *DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "topics",
				"POSTGRES_PASSWORD": "topics",
				"POSTGRES_DB":       "topics",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://topics:topics@%s:%s/topics?sslmode=disable", host, port.Port())

	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer sqlDB.Close()
	require.NoError(t, migrate.UpDB(ctx, sqlDB))
	v, err := migrate.Version(ctx, sqlDB)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &DB{Pool: pool}
}

func TestIntegration_OwnershipAndCascade(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	tables := NewTableRepo(db)

	ann := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "ann@example.com"}
	bob := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "bob@example.com"}
	require.NoError(t, users.Create(ctx, ann))
	require.NoError(t, users.Create(ctx, bob))
	require.ErrorIs(t, users.Create(ctx, &model.User{ID: uuid.Must(uuid.NewV4()), Email: "ANN@example.com"}), errs.ErrAlreadyExists)

	got, err := users.GetByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	require.Equal(t, ann.ID, got.ID)

	ts, err := tables.InsertTopics(ctx, ann.ID, []model.Topic{{Title: "Work"}})
	require.NoError(t, err)
	topicID := ts[0].ID

	_, err = tables.InsertTopics(ctx, ann.ID, []model.Topic{{Title: "   "}})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = tables.InsertSubtopics(ctx, bob.ID, []model.Subtopic{{Title: "Steal", TopicID: topicID}})
	require.ErrorIs(t, err, errs.ErrConflict, "bob cannot attach to ann's topic")

	subs, err := tables.InsertSubtopics(ctx, ann.ID, []model.Subtopic{{Title: "Email", TopicID: topicID, Content: "inbox"}})
	require.NoError(t, err)
	require.Equal(t, "inbox", subs[0].Content)

	byID := []repository.Filter{{Column: "id", Value: topicID}}
	n, err := tables.UpdateTopics(ctx, bob.ID, repository.Patch{"title": "Mine"}, byID)
	require.NoError(t, err)
	require.Zero(t, n, "updates are scoped to the owner")

	bobView, err := tables.ListSubtopics(ctx, bob.ID, nil)
	require.NoError(t, err)
	require.Empty(t, bobView)

	n, err = tables.DeleteTopics(ctx, ann.ID, byID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	left, err := tables.ListSubtopics(ctx, ann.ID, nil)
	require.NoError(t, err)
	require.Empty(t, left, "subtopics cascade with their topic")
}

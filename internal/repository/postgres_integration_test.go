package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/todo-service/internal/domain"
)

// Integration tests run only when TEST_POSTGRES_DSN points at a migrated database.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresUserRepository(t *testing.T) {
	pool := mustOpenTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     "it-" + suffix,
		Email:        "it-" + suffix + "@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, repo.Create(ctx, user))
	assert.False(t, user.CreatedAt.IsZero())

	got, err := repo.GetByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	exists, err := repo.ExistsByUsernameOrEmail(ctx, "nobody-"+suffix, user.Email)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &domain.User{ID: uuid.NewString(), Username: user.Username, Email: "x-" + user.Email, PasswordHash: "hash"}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)

	_, err = repo.GetByUsername(ctx, "nobody-"+suffix)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresItemRepository(t *testing.T) {
	pool := mustOpenTestPool(t)
	users := NewUserRepository(pool)
	items := NewItemRepository(pool)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	owners := []string{"it-a-" + suffix, "it-b-" + suffix}
	for _, name := range owners {
		require.NoError(t, users.Create(ctx, &domain.User{
			ID: uuid.NewString(), Username: name, Email: name + "@example.com", PasswordHash: "hash",
		}))
	}

	item := &domain.Item{ID: uuid.NewString(), Owner: owners[0], Title: "buy milk", Status: domain.ItemStatusPending}
	require.NoError(t, items.Create(ctx, item))

	listed, err := items.ListByOwner(ctx, owners[1])
	require.NoError(t, err)
	assert.Empty(t, listed)

	foreign := *item
	foreign.Owner = owners[1]
	assert.ErrorIs(t, items.Update(ctx, &foreign), ErrNotFound)
	assert.ErrorIs(t, items.Delete(ctx, owners[1], item.ID), ErrNotFound)

	_, err = items.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	item.Status = domain.ItemStatusCompleted
	require.NoError(t, items.Update(ctx, item))
	require.NoError(t, items.Delete(ctx, owners[0], item.ID))
	_, err = items.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

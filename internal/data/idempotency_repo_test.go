package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/testutil"
)

func newRecord(now time.Time, hash, snapshot string, ttl time.Duration) *model.IdempotencyRecord {
	return &model.IdempotencyRecord{
		Scope:            "teacher.plan.generate",
		Key:              "key-1",
		RequestHash:      hash,
		ResponseSnapshot: json.RawMessage(snapshot),
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
}

// exerciseIdempotencyRepo checks the contract every backend must satisfy.
func exerciseIdempotencyRepo(t *testing.T, repo core.IdempotencyRepository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec, err := repo.Find(ctx, "teacher.plan.generate", "key-1", now)
	require.NoError(t, err)
	assert.Nil(t, rec)

	inserted, err := repo.Insert(ctx, newRecord(now, "hash-a", `{"plan":"A"}`, 10*time.Minute))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = repo.Insert(ctx, newRecord(now, "hash-b", `{"plan":"B"}`, 10*time.Minute))
	require.NoError(t, err)
	assert.False(t, inserted, "first writer wins")

	rec, err = repo.Find(ctx, "teacher.plan.generate", "key-1", now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hash-a", rec.RequestHash)
	assert.Equal(t, `{"plan":"A"}`, string(rec.ResponseSnapshot))

	rec, err = repo.Find(ctx, "other.scope", "key-1", now)
	require.NoError(t, err)
	assert.Nil(t, rec, "keys are only unique within a scope")

	_, err = repo.Find(ctx, "teacher.plan.generate", "", now)
	require.ErrorIs(t, err, ErrKeyRequired)
}

func TestIdempotencyRepo_Postgres(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIdempotencyRepo(db, IdempotencyRepoOptions{})
		exerciseIdempotencyRepo(t, repo)
	})
}

func TestIdempotencyRepo_PostgresExpiry(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewIdempotencyRepo(db, IdempotencyRepoOptions{})
		now := testutil.TestTime()

		_, err := repo.Insert(ctx, newRecord(now, "hash-a", `{"v":1}`, 5*time.Minute))
		require.NoError(t, err)

		rec, err := repo.Find(ctx, "teacher.plan.generate", "key-1", now.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, rec, "expired records are invisible")

		later := now.Add(10 * time.Minute)
		inserted, err := repo.Insert(ctx, newRecord(later, "hash-b", `{"v":2}`, 5*time.Minute))
		require.NoError(t, err)
		assert.True(t, inserted, "an expired row is replaced")

		deleted, err := repo.DeleteExpired(ctx, later.Add(time.Hour), 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})
}

func TestIdempotencyRepo_Redis(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer func() { _ = client.Close() }()

	exerciseIdempotencyRepo(t, NewRedisIdempotencyRepo(client))
}

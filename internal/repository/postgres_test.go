package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartmail/internal/model"
)

// 需要真实的 PostgreSQL，未设置 SMARTMAIL_TEST_PG_DSN 时跳过
func newPostgresTestStore(t *testing.T, policy ClassificationPolicy) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SMARTMAIL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SMARTMAIL_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s, err := NewPostgresStore(ctx, pool, policy, zap.NewNop())
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE emails, responses, attachment_blobs`)
	require.NoError(t, err)
	return s
}

func TestPostgresStore_UpsertAndClassify(t *testing.T) {
	s := newPostgresTestStore(t, PolicyResetOnChange)
	ctx := context.Background()

	res, err := s.UpsertMany(ctx, []model.EmailRecord{testEmail("m1", "one"), testEmail("", "skip")})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{UpsertedCount: 1, SkippedCount: 1}, res)

	require.NoError(t, s.UpdateClassification(ctx, "gmail", "m1", model.Classification{Category: model.CategoryWork, Confidence: 0.8}))
	classified, err := s.GetClassified(ctx)
	require.NoError(t, err)
	require.Len(t, classified, 1)

	res, err = s.UpsertMany(ctx, []model.EmailRecord{testEmail("m1", "one, changed")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ModifiedCount)

	unclassified, err := s.GetUnclassified(ctx)
	require.NoError(t, err)
	require.Len(t, unclassified, 1)
	assert.Equal(t, classified[0].ID, unclassified[0].ID)

	got, err := s.GetByID(ctx, unclassified[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "one, changed", got.Subject)

	_, err = s.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Responses(t *testing.T) {
	s := newPostgresTestStore(t, PolicyPreserve)
	ctx := context.Background()

	r := &model.ResponseRecord{EmailID: "e1", To: "alice@example.com", Subject: "Re: hi", Status: model.ResponseStatusSent}
	require.NoError(t, s.AppendResponse(ctx, r))

	list, err := s.ListResponses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
	assert.False(t, list[0].SentAt.IsZero())
}

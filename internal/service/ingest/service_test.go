package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "smartmail/contracts/mq"
	"smartmail/internal/normalize"
	"smartmail/internal/repository"
	"smartmail/pkg/util"
)

type fakeFetcher struct {
	raws []normalize.RawMessage
	err  error
}

func (f *fakeFetcher) FetchInbox(_ context.Context, max int) ([]normalize.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if max < len(f.raws) {
		return f.raws[:max], nil
	}
	return f.raws, nil
}

type recordingPublisher struct {
	payloads []mqcontracts.EmailFetchedPayload
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	if routingKey == mqcontracts.RoutingEmailFetched {
		p.payloads = append(p.payloads, payload.(mqcontracts.EmailFetchedPayload))
	}
	return nil
}

func newStore(t *testing.T) repository.EmailStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ingest.db"), repository.PolicyPreserve, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRaws() []normalize.RawMessage {
	return []normalize.RawMessage{
		{ID: "m1", ThreadID: "t1", From: "a@example.com", To: normalize.AddressList{"me@example.com"}, Subject: "One", Snippet: "line\none"},
		{MessageID: "m2", Sender: "b@example.com", SubjectTitle: "Two"},
		{Subject: "no id at all"},
	}
}

func TestFetchNormalizesAndUpserts(t *testing.T) {
	store := newStore(t)
	events := &recordingPublisher{}
	svc := NewService(&fakeFetcher{raws: sampleRaws()}, store, "gmail", events, nil, zap.NewNop())

	res, err := svc.Fetch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, repository.UpsertResult{UpsertedCount: 2, SkippedCount: 1}, res.Upsert)
	assert.Equal(t, 2, res.TotalStored)
	require.Len(t, res.Emails, 2)
	assert.NotEmpty(t, res.Emails[0].ID)
	assert.Equal(t, "b@example.com", res.Emails[1].From)
	assert.Equal(t, "Two", res.Emails[1].Subject)
	assert.Len(t, events.payloads, 2)
	assert.Equal(t, res.Emails[0].ID, events.payloads[0].EmailID)

	res, err = svc.Fetch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Upsert.UpsertedCount)
	assert.Equal(t, 2, res.Upsert.ModifiedCount)
	assert.Equal(t, 2, res.TotalStored)
}

func TestFetchNothing(t *testing.T) {
	svc := NewService(&fakeFetcher{}, newStore(t), "gmail", nil, nil, zap.NewNop())
	res, err := svc.Fetch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
	assert.Empty(t, res.Emails)
}

func TestFetchPropagatesProviderError(t *testing.T) {
	svc := NewService(&fakeFetcher{err: errors.New("gmail unavailable")}, newStore(t), "gmail", nil, nil, zap.NewNop())
	_, err := svc.Fetch(context.Background(), 10)
	assert.EqualError(t, err, "gmail unavailable")
}

func TestFetchPublishesWhenRedisUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	dedup := util.NewDeduper(rdb, time.Minute, zap.NewNop())

	events := &recordingPublisher{}
	svc := NewService(&fakeFetcher{raws: sampleRaws()[:1]}, newStore(t), "gmail", events, dedup, zap.NewNop())

	_, err := svc.Fetch(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, events.payloads, 1)
}

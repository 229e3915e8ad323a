package classify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "smartmail/contracts/mq"
	"smartmail/internal/model"
	"smartmail/internal/repository"
)

type scriptedLLM struct {
	mu      sync.Mutex
	calls   int
	replies []string
	errs    map[int]error
}

func (s *scriptedLLM) Complete(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[s.calls]; err != nil {
		return "", err
	}
	return s.replies[(s.calls-1)%len(s.replies)], nil
}

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func seedStore(t *testing.T, n int) repository.EmailStore {
	t.Helper()
	ctx := context.Background()
	store, err := repository.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "classify.db"), repository.PolicyPreserve, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	recs := make([]model.EmailRecord, 0, n)
	for i := 1; i <= n; i++ {
		recs = append(recs, model.EmailRecord{
			Provider:          "gmail",
			ProviderMessageID: fmt.Sprintf("m%d", i),
			From:              "sender@example.com",
			Subject:           fmt.Sprintf("subject %d", i),
		})
	}
	_, err = store.UpsertMany(ctx, recs)
	require.NoError(t, err)
	return store
}

func TestClassifyBatchProcessesExactlyLimit(t *testing.T) {
	store := seedStore(t, 5)
	completer := &scriptedLLM{
		replies: []string{`{"category":"Work / Professional","confidence":0.9,"reasoning":"r","summary":"s"}`},
		errs:    map[int]error{2: errors.New("llm quota exceeded")},
	}
	events := &recordingPublisher{}
	svc := NewService(store, completer, events, zap.NewNop())

	var waits []time.Duration
	svc.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	updated, err := svc.ClassifyBatch(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, updated, 3)
	assert.Equal(t, 3, completer.calls)
	assert.Len(t, waits, 2)

	assert.Equal(t, model.CategoryWork, updated[0].Classification.Category)
	assert.Equal(t, Fallback(), *updated[1].Classification)
	assert.Equal(t, model.CategoryWork, updated[2].Classification.Category)
	for _, r := range updated {
		assert.True(t, r.Processed)
	}

	unclassified, err := store.GetUnclassified(context.Background())
	require.NoError(t, err)
	assert.Len(t, unclassified, 2)

	classified, err := store.GetClassified(context.Background())
	require.NoError(t, err)
	assert.Len(t, classified, 3)
	assert.Equal(t, []string{
		mqcontracts.RoutingEmailClassified,
		mqcontracts.RoutingEmailClassified,
		mqcontracts.RoutingEmailClassified,
	}, events.keys)
}

func TestClassifyBatchMalformedOutputFallsBack(t *testing.T) {
	store := seedStore(t, 1)
	svc := NewService(store, &scriptedLLM{replies: []string{"not json at all"}}, nil, zap.NewNop())

	updated, err := svc.ClassifyBatch(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, model.CategoryOther, updated[0].Classification.Category)
	assert.Equal(t, "Parsing error", updated[0].Classification.Reasoning)
}

func TestClassifyBatchNothingPending(t *testing.T) {
	store := seedStore(t, 0)
	completer := &scriptedLLM{replies: []string{"{}"}}
	svc := NewService(store, completer, nil, zap.NewNop())

	updated, err := svc.ClassifyBatch(context.Background(), 5, time.Second)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Zero(t, completer.calls)
}

func TestClassifyBatchStopsOnCancel(t *testing.T) {
	store := seedStore(t, 3)
	completer := &scriptedLLM{replies: []string{`{"category":"Personal","confidence":0.6}`}}
	svc := NewService(store, completer, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	svc.wait = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	updated, err := svc.ClassifyBatch(ctx, 3, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, updated, 1)
	assert.Equal(t, 1, completer.calls)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}

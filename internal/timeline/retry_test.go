package timeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lifestory/internal/api"
	"lifestory/internal/config"
	"lifestory/internal/models"
	"lifestory/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &api.HTTPError{StatusCode: 503}, true},
		{"internal error", &api.HTTPError{StatusCode: 500}, true},
		{"request timeout", &api.HTTPError{StatusCode: 408}, true},
		{"too many requests", &api.HTTPError{StatusCode: 429}, true},
		{"bad request", &api.HTTPError{StatusCode: 400}, false},
		{"unauthorized", &api.HTTPError{StatusCode: 401}, false},
		{"wrapped server error", fmt.Errorf("upload: %w", &api.HTTPError{StatusCode: 502}), true},
		{"network", &api.NetworkError{Op: "POST", Err: errors.New("connection refused")}, true},
		{"cancelled", &api.NetworkError{Op: "POST", Err: context.Canceled}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"unknown type", fmt.Errorf("%w: %q", ErrUnknownItemType, "video"), false},
		{"plain", errors.New("file not found"), false},
		{"message with status digits", errors.New("server said 503"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func failingText(err error) *fakeUploader {
	return &fakeUploader{
		text: func(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
			return nil, err
		},
	}
}

func TestRetryableFailureIsQueued(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	uploader := &fakeUploader{
		text: func(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
			if fail.Load() {
				return nil, &api.HTTPError{StatusCode: 503, Message: "unavailable"}
			}
			return &models.ServerResult{ID: "srv_ok"}, nil
		},
	}
	env := newEnv(t, uploader, testOptions()).initialized(t)
	ctx := context.Background()

	added, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "retry me"})
	require.NoError(t, err)

	failed := env.waitItem(t, added.ID, statusIs(models.StatusError))
	assert.True(t, failed.WillRetry)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Contains(t, failed.Error, "503")

	queue := env.store.State().RetryQueue
	require.Len(t, queue, 1)
	assert.Equal(t, added.ID, queue[0].ID)
	assert.Equal(t, env.clock.Now().Add(5*time.Second), queue[0].NextRetryAt)
	assert.Contains(t, queue[0].LastError, "unavailable")
	assert.Len(t, persistedQueue(t, env.kv), 1)

	env.clock.Advance(4 * time.Second)
	env.store.ProcessRetryQueue(ctx)
	assert.Len(t, env.store.State().RetryQueue, 1)
	assert.Equal(t, 1, env.uploader.Uploads())

	fail.Store(false)
	env.clock.Advance(time.Second)
	env.store.ProcessRetryQueue(ctx)

	done := env.waitItem(t, "srv_ok", statusIs(models.StatusDone))
	assert.Equal(t, 1, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Empty(t, env.store.State().RetryQueue)
	assert.Empty(t, persistedQueue(t, env.kv))
	assert.Equal(t, 2, env.uploader.Uploads())
}

func TestRetryBackoffUntilTerminal(t *testing.T) {
	env := newEnv(t, failingText(&api.HTTPError{StatusCode: 500}), testOptions()).initialized(t)
	ctx := context.Background()

	added, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "never lands"})
	require.NoError(t, err)

	delays := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for attempt, delay := range delays {
		env.waitItem(t, added.ID, func(item models.TimelineItem) bool {
			return item.Status == models.StatusError && item.RetryCount == attempt+1
		})
		queue := env.store.State().RetryQueue
		require.Len(t, queue, 1)
		assert.Equal(t, delay, queue[0].NextRetryAt.Sub(env.clock.Now()), "attempt %d", attempt+1)

		env.clock.Advance(delay)
		env.store.ProcessRetryQueue(ctx)
	}

	final := env.waitItem(t, added.ID, func(item models.TimelineItem) bool {
		return item.Status == models.StatusError && !item.WillRetry
	})
	assert.Equal(t, 3, final.RetryCount)
	assert.Empty(t, env.store.State().RetryQueue)
	assert.Equal(t, 4, env.uploader.Uploads())
}

func TestNonRetryableFailureIsTerminal(t *testing.T) {
	env := newEnv(t, failingText(&api.HTTPError{StatusCode: 400, Message: "bad"}), testOptions()).initialized(t)

	added, err := env.store.AddPendingItem(context.Background(), models.TextPayload{Content: "rejected"})
	require.NoError(t, err)

	item := env.waitItem(t, added.ID, statusIs(models.StatusError))
	assert.False(t, item.WillRetry)
	assert.Zero(t, item.RetryCount)
	assert.Empty(t, env.store.State().RetryQueue)
}

func TestTruncatedResponseIsRetried(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "40")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"srv_cut"`))
	}))
	t.Cleanup(ts.Close)

	clock := newFakeClock()
	store, err := NewStore(Deps{
		KV:       repository.NewMemoryKVStore(),
		Uploader: api.NewUploadClient(config.APIConfig{BaseURL: ts.URL, Timeout: 2 * time.Second}),
		Clock:    clock,
	}, testOptions())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	store.Init(context.Background())

	added, err := store.AddPendingItem(context.Background(), models.TextPayload{Content: "cut off"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		item, ok := store.GetItem(added.ID)
		return ok && item.Status == models.StatusError
	}, 2*time.Second, 2*time.Millisecond)

	item, _ := store.GetItem(added.ID)
	assert.True(t, item.WillRetry, "error: %s", item.Error)
	assert.Equal(t, 1, item.RetryCount)
	require.Len(t, store.State().RetryQueue, 1)
}

func TestUnreadableAudioIsTerminal(t *testing.T) {
	uploader := &fakeUploader{
		voice: func(ctx context.Context, req models.VoiceMemoRequest) (*models.ServerResult, error) {
			return nil, fmt.Errorf("open audio: %w", errors.New("no such file"))
		},
	}
	env := newEnv(t, uploader, testOptions()).initialized(t)

	added, err := env.store.AddPendingItem(context.Background(), models.VoicePayload{AudioPath: "/missing.m4a"})
	require.NoError(t, err)

	item := env.waitItem(t, added.ID, statusIs(models.StatusError))
	assert.False(t, item.WillRetry)
}

func TestUnknownTypeIsTerminal(t *testing.T) {
	env := newEnv(t, nil, testOptions())
	now := env.clock.Now()
	seed(t, env.kv, []models.TimelineItem{{
		ID: "temp_1", Type: "video", Status: models.StatusPending, CreatedAt: now, UpdatedAt: now,
	}}, nil)

	require.NoError(t, env.store.Start(context.Background()))

	item := env.waitItem(t, "temp_1", statusIs(models.StatusError))
	assert.False(t, item.WillRetry)
	assert.Contains(t, item.Error, "unknown item type")
	assert.Zero(t, env.uploader.Uploads())
}

func TestManualRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	uploader := &fakeUploader{
		text: func(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
			if fail.Load() {
				return nil, &api.HTTPError{StatusCode: 422}
			}
			return &models.ServerResult{ID: "srv_manual"}, nil
		},
	}
	env := newEnv(t, uploader, testOptions()).initialized(t)
	ctx := context.Background()

	added, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "try again"})
	require.NoError(t, err)
	env.waitItem(t, added.ID, statusIs(models.StatusError))

	fail.Store(false)
	require.NoError(t, env.store.RetryItem(ctx, added.ID))

	done := env.waitItem(t, "srv_manual", statusIs(models.StatusDone))
	assert.Equal(t, 1, done.RetryCount)

	require.NoError(t, env.store.RetryItem(ctx, "srv_manual"))
	require.NoError(t, env.store.RetryItem(ctx, "missing"))
	assert.Equal(t, 2, env.uploader.Uploads())
}

func TestManualRetryDropsQueuedEntry(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	uploader := &fakeUploader{
		text: func(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
			if calls.Add(1) == 1 {
				return nil, &api.HTTPError{StatusCode: 503}
			}
			<-release
			return &models.ServerResult{ID: "srv_1"}, nil
		},
	}
	env := newEnv(t, uploader, testOptions()).initialized(t)
	ctx := context.Background()

	added, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "queued"})
	require.NoError(t, err)
	env.waitItem(t, added.ID, func(item models.TimelineItem) bool { return item.WillRetry })
	require.Len(t, env.store.State().RetryQueue, 1)

	require.NoError(t, env.store.RetryItem(ctx, added.ID))
	assert.Empty(t, env.store.State().RetryQueue)
	assert.Empty(t, persistedQueue(t, env.kv))

	item, ok := env.store.GetItem(added.ID)
	require.True(t, ok)
	assert.Equal(t, 2, item.RetryCount)

	close(release)
	env.waitItem(t, "srv_1", statusIs(models.StatusDone))
}

func TestDeleteItemRemovesQueuedRetry(t *testing.T) {
	env := newEnv(t, failingText(&api.HTTPError{StatusCode: 503}), testOptions()).initialized(t)
	ctx := context.Background()

	added, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "doomed"})
	require.NoError(t, err)
	env.waitItem(t, added.ID, func(item models.TimelineItem) bool { return item.WillRetry })

	require.NoError(t, env.store.DeleteItem(ctx, added.ID))

	_, ok := env.store.GetItem(added.ID)
	assert.False(t, ok)
	assert.Empty(t, env.store.State().RetryQueue)
	assert.Empty(t, persistedItems(t, env.kv))
	assert.Empty(t, persistedQueue(t, env.kv))

	env.clock.Advance(time.Hour)
	env.store.ProcessRetryQueue(ctx)
	assert.Equal(t, 1, env.uploader.Uploads())

	require.NoError(t, env.store.DeleteItem(ctx, added.ID))
}

func TestProcessRetryQueueSkipsDeletedItems(t *testing.T) {
	env := newEnv(t, nil, testOptions())
	now := env.clock.Now()
	item := models.TimelineItem{ID: "temp_a", Type: models.ItemTypeText, Status: models.StatusError, Content: "a", RetryCount: 1, CreatedAt: now, UpdatedAt: now}
	seed(t, env.kv, []models.TimelineItem{item}, []models.RetryQueueEntry{{TimelineItem: item, NextRetryAt: now}})
	env.initialized(t)

	env.store.mu.Lock()
	delete(env.store.items, "temp_a")
	env.store.mu.Unlock()

	env.store.ProcessRetryQueue(context.Background())

	assert.Empty(t, env.store.State().RetryQueue)
	assert.Empty(t, env.store.GetItems(models.ItemFilter{}))
	assert.Zero(t, env.uploader.Uploads())
}

func TestRetryCycleRunsOnStart(t *testing.T) {
	env := newEnv(t, nil, testOptions())
	now := env.clock.Now()
	item := models.TimelineItem{ID: "temp_q", Type: models.ItemTypeText, Status: models.StatusError, Content: "q", RetryCount: 2, WillRetry: true, CreatedAt: now, UpdatedAt: now}
	seed(t, env.kv, []models.TimelineItem{item}, []models.RetryQueueEntry{{TimelineItem: item, LastError: "503", NextRetryAt: now.Add(-time.Second)}})

	require.NoError(t, env.store.Start(context.Background()))

	done := env.onlyItem(t, statusIs(models.StatusDone))
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, env.store.State().RetryQueue)

	assert.Error(t, env.store.Start(context.Background()))
}

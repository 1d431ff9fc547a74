package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"lifestory/internal/models"
	"lifestory/internal/repository"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUploader struct {
	mu          sync.Mutex
	text        func(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error)
	voice       func(ctx context.Context, req models.VoiceMemoRequest) (*models.ServerResult, error)
	answer      func(ctx context.Context, req models.InterviewAnswerRequest) (*models.ServerResult, error)
	status      func(ctx context.Context, id string) (*models.TranscriptionStatus, error)
	uploads     int
	statusCalls int
}

func (f *fakeUploader) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return f.uploads
}

func (f *fakeUploader) Uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func (f *fakeUploader) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeUploader) SubmitTextMemo(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
	n := f.next()
	if f.text != nil {
		return f.text(ctx, req)
	}
	return &models.ServerResult{ID: fmt.Sprintf("srv_%d", n), Status: string(models.StatusDone)}, nil
}

func (f *fakeUploader) SubmitVoiceMemo(ctx context.Context, req models.VoiceMemoRequest) (*models.ServerResult, error) {
	n := f.next()
	if f.voice != nil {
		return f.voice(ctx, req)
	}
	return &models.ServerResult{ID: fmt.Sprintf("voice_%d", n), AudioURL: "https://cdn.test/voice.m4a"}, nil
}

func (f *fakeUploader) SubmitInterviewAnswer(ctx context.Context, req models.InterviewAnswerRequest) (*models.ServerResult, error) {
	n := f.next()
	if f.answer != nil {
		return f.answer(ctx, req)
	}
	return &models.ServerResult{ID: fmt.Sprintf("answer_%d", n)}, nil
}

func (f *fakeUploader) GetVoiceMemoStatus(ctx context.Context, id string) (*models.TranscriptionStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	if f.status != nil {
		return f.status(ctx, id)
	}
	return &models.TranscriptionStatus{Status: models.TranscriptionCompleted, Transcript: "hello"}, nil
}

// flakyKV fails writes while failing is set.
type flakyKV struct {
	*repository.MemoryKVStore
	mu      sync.Mutex
	failing bool
}

func (f *flakyKV) SetFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return f.MemoryKVStore.Set(ctx, key, value)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryInterval = 20 * time.Millisecond
	opts.PollInterval = 5 * time.Millisecond
	opts.PollErrorInterval = 5 * time.Millisecond
	return opts
}

type testEnv struct {
	store    *Store
	kv       *flakyKV
	clock    *fakeClock
	uploader *fakeUploader
}

func newEnv(t *testing.T, uploader *fakeUploader, opts Options) *testEnv {
	t.Helper()
	kv := &flakyKV{MemoryKVStore: repository.NewMemoryKVStore()}
	return newEnvWithKV(t, kv, uploader, opts)
}

func newEnvWithKV(t *testing.T, kv *flakyKV, uploader *fakeUploader, opts Options) *testEnv {
	t.Helper()
	if uploader == nil {
		uploader = &fakeUploader{}
	}
	clock := newFakeClock()
	store, err := NewStore(Deps{KV: kv, Uploader: uploader, Clock: clock}, opts)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return &testEnv{store: store, kv: kv, clock: clock, uploader: uploader}
}

func (e *testEnv) initialized(t *testing.T) *testEnv {
	t.Helper()
	e.store.Init(context.Background())
	return e
}

// waitItem blocks until the item with id satisfies cond.
func (e *testEnv) waitItem(t *testing.T, id string, cond func(models.TimelineItem) bool) models.TimelineItem {
	t.Helper()
	var last models.TimelineItem
	require.Eventually(t, func() bool {
		item, ok := e.store.GetItem(id)
		last = item
		return ok && cond(item)
	}, 2*time.Second, 2*time.Millisecond, "item %s never reached the expected state", id)
	return last
}

// onlyItem waits until the store holds exactly one item matching cond.
func (e *testEnv) onlyItem(t *testing.T, cond func(models.TimelineItem) bool) models.TimelineItem {
	t.Helper()
	var found models.TimelineItem
	require.Eventually(t, func() bool {
		items := e.store.GetItems(models.ItemFilter{})
		if len(items) != 1 || !cond(items[0]) {
			return false
		}
		found = items[0]
		return true
	}, 2*time.Second, 2*time.Millisecond)
	return found
}

func seed(t *testing.T, kv *flakyKV, items []models.TimelineItem, queue []models.RetryQueueEntry) {
	t.Helper()
	ctx := context.Background()
	if items != nil {
		raw, err := json.Marshal(items)
		require.NoError(t, err)
		require.NoError(t, kv.Set(ctx, models.ItemsKey, raw))
	}
	if queue != nil {
		raw, err := json.Marshal(queue)
		require.NoError(t, err)
		require.NoError(t, kv.Set(ctx, models.RetryQueueKey, raw))
	}
}

func persistedItems(t *testing.T, kv *flakyKV) []models.TimelineItem {
	t.Helper()
	raw, err := kv.Get(context.Background(), models.ItemsKey)
	require.NoError(t, err)
	var items []models.TimelineItem
	if raw != nil {
		require.NoError(t, json.Unmarshal(raw, &items))
	}
	return items
}

func persistedQueue(t *testing.T, kv *flakyKV) []models.RetryQueueEntry {
	t.Helper()
	raw, err := kv.Get(context.Background(), models.RetryQueueKey)
	require.NoError(t, err)
	var queue []models.RetryQueueEntry
	if raw != nil {
		require.NoError(t, json.Unmarshal(raw, &queue))
	}
	return queue
}

func statusIs(status models.ItemStatus) func(models.TimelineItem) bool {
	return func(item models.TimelineItem) bool { return item.Status == status }
}

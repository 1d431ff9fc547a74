package timeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"lifestory/internal/api"
	"lifestory/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetItemsFiltersAndSorts(t *testing.T) {
	env := newEnv(t, nil, testOptions())
	now := env.clock.Now()
	seed(t, env.kv, []models.TimelineItem{
		{ID: "a", Type: models.ItemTypeText, Status: models.StatusDone, AddToBook: true, CreatedAt: now},
		{ID: "b", Type: models.ItemTypeVoice, Status: models.StatusTranscribing, CreatedAt: now.Add(time.Minute)},
		{ID: "c", Type: models.ItemTypeText, Status: models.StatusError, AddToBook: true, CreatedAt: now.Add(2 * time.Minute)},
		{ID: "d", Type: models.ItemTypeInterviewAnswer, Status: models.StatusDone, CreatedAt: now.Add(-time.Minute)},
	}, []models.RetryQueueEntry{{TimelineItem: models.TimelineItem{ID: "c"}, NextRetryAt: now}})
	env.initialized(t)

	ids := func(items []models.TimelineItem) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.ID)
		}
		return out
	}

	text := models.ItemTypeText
	done := models.StatusDone
	inBook := true

	assert.Equal(t, []string{"c", "b", "a", "d"}, ids(env.store.GetItems(models.ItemFilter{})))
	assert.Equal(t, []string{"c", "a"}, ids(env.store.GetItems(models.ItemFilter{Type: &text})))
	assert.Equal(t, []string{"a", "d"}, ids(env.store.GetItems(models.ItemFilter{Status: &done})))
	assert.Equal(t, []string{"a"}, ids(env.store.GetItems(models.ItemFilter{Type: &text, Status: &done, AddToBook: &inBook})))

	stats := env.store.GetStats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.InBook)
	assert.Equal(t, 1, stats.RetryQueueSize)
	assert.Equal(t, map[models.ItemStatus]int{
		models.StatusPending:      0,
		models.StatusUploading:    0,
		models.StatusTranscribing: 1,
		models.StatusDone:         2,
		models.StatusError:        1,
	}, stats.ByStatus)

	item, ok := env.store.GetItem("b")
	require.True(t, ok)
	item.Status = models.StatusDone
	again, _ := env.store.GetItem("b")
	assert.Equal(t, models.StatusTranscribing, again.Status)
}

func TestStatsOnEmptyStore(t *testing.T) {
	env := newEnv(t, nil, testOptions()).initialized(t)

	stats := env.store.GetStats()
	assert.Zero(t, stats.Total)
	assert.Len(t, stats.ByStatus, len(models.AllStatuses))
}

func TestResolveIDFollowsFinalize(t *testing.T) {
	env := newEnv(t, nil, testOptions()).initialized(t)

	added, err := env.store.AddPendingItem(context.Background(), models.TextPayload{Content: "c"})
	require.NoError(t, err)

	env.onlyItem(t, statusIs(models.StatusDone))
	assert.Equal(t, "srv_1", env.store.ResolveID(added.ID))
	assert.Equal(t, "srv_1", env.store.ResolveID("srv_1"))
	assert.Equal(t, "unknown", env.store.ResolveID("unknown"))
}

func TestStatsTrackItemsThroughLifecycle(t *testing.T) {
	var flaky atomic.Bool
	flaky.Store(true)
	uploader := &fakeUploader{
		text: func(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
			switch {
			case req.Content == "reject":
				return nil, &api.HTTPError{StatusCode: 400}
			case req.Content == "flaky" && flaky.Load():
				return nil, &api.HTTPError{StatusCode: 503}
			}
			return &models.ServerResult{ID: "srv_" + req.Content, Status: "done"}, nil
		},
	}
	env := newEnv(t, uploader, testOptions()).initialized(t)
	ctx := context.Background()

	checkStats := func(step string) {
		t.Helper()
		stats := env.store.GetStats()
		all := env.store.GetItems(models.ItemFilter{})
		assert.Equal(t, len(all), stats.Total, step)

		sum := 0
		for _, status := range models.AllStatuses {
			n := len(env.store.GetItems(models.ItemFilter{Status: &status}))
			assert.Equal(t, n, stats.ByStatus[status], "%s: %s", step, status)
			sum += n
		}
		assert.Equal(t, stats.Total, sum, step)

		inBook := true
		assert.Equal(t, len(env.store.GetItems(models.ItemFilter{AddToBook: &inBook})), stats.InBook, step)
		assert.Equal(t, len(env.store.State().RetryQueue), stats.RetryQueueSize, step)
	}
	settle := func(id string, cond func(models.TimelineItem) bool) {
		t.Helper()
		require.Eventually(t, func() bool {
			item, ok := env.store.GetItem(env.store.ResolveID(id))
			return ok && cond(item)
		}, 2*time.Second, 2*time.Millisecond)
	}
	retrying := func(count int) func(models.TimelineItem) bool {
		return func(item models.TimelineItem) bool {
			return item.Status == models.StatusError && item.WillRetry && item.RetryCount == count
		}
	}

	checkStats("empty")

	kept, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "kept", AddToBook: true})
	require.NoError(t, err)
	settle(kept.ID, statusIs(models.StatusDone))
	checkStats("insert")

	flakyItem, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "flaky", AddToBook: true})
	require.NoError(t, err)
	settle(flakyItem.ID, retrying(1))
	checkStats("retryable failure")

	rejected, err := env.store.AddPendingItem(ctx, models.TextPayload{Content: "reject"})
	require.NoError(t, err)
	settle(rejected.ID, func(item models.TimelineItem) bool {
		return item.Status == models.StatusError && !item.WillRetry
	})
	checkStats("terminal failure")

	require.NoError(t, env.store.RetryItem(ctx, flakyItem.ID))
	settle(flakyItem.ID, retrying(3))
	checkStats("manual retry")

	require.NoError(t, env.store.DeleteItem(ctx, rejected.ID))
	checkStats("delete")

	flaky.Store(false)
	env.clock.Advance(time.Minute)
	env.store.ProcessRetryQueue(ctx)
	settle(flakyItem.ID, statusIs(models.StatusDone))
	checkStats("queued retry")

	require.NoError(t, env.store.DeleteItem(ctx, env.store.ResolveID(flakyItem.ID)))
	checkStats("delete finalized")

	stats := env.store.GetStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.StatusDone])
	assert.Equal(t, 1, stats.InBook)
	assert.Zero(t, stats.RetryQueueSize)
}

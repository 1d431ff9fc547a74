package main

import (
	"context"
	"fmt"

	"lifestory/internal/models"
	"lifestory/internal/timeline"
)

// uploadSettled holds once the upload attempt has an outcome.
func uploadSettled(item models.TimelineItem) bool {
	return item.Status != models.StatusPending && item.Status != models.StatusUploading
}

// terminal holds once no further automatic progress will happen.
func terminal(item models.TimelineItem) bool {
	switch item.Status {
	case models.StatusDone:
		return true
	case models.StatusError:
		return !item.WillRetry
	}
	return false
}

// waitForItem blocks until the item, followed across re-keying, satisfies
// settled or ctx ends.
func waitForItem(ctx context.Context, store *timeline.Store, itemID string, settled func(models.TimelineItem) bool) (models.TimelineItem, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := store.Subscribe(func(models.TimelineState) error {
		select {
		case changed <- struct{}{}:
		default:
		}
		return nil
	})
	defer unsubscribe()

	for {
		item, ok := store.GetItem(store.ResolveID(itemID))
		if !ok {
			return item, fmt.Errorf("%w: %s", timeline.ErrItemNotFound, itemID)
		}
		if settled(item) {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return item, fmt.Errorf("waiting for %s: %w", item.ID, ctx.Err())
		case <-changed:
		}
	}
}

package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"lifestory/internal/models"
)

// load reads both persisted keys and reconciles them. Unreadable data is
// logged and treated as empty. requeued counts retrying items that had lost
// their queue entry.
func (s *Store) load(ctx context.Context) (items map[string]*models.TimelineItem, queue []models.RetryQueueEntry, requeued int) {
	var stored []models.TimelineItem
	if err := s.readJSON(ctx, models.ItemsKey, &stored); err != nil {
		s.logger.Warn().Err(err).Str("key", models.ItemsKey).Msg("failed to load timeline items")
		stored = nil
	}
	var storedQueue []models.RetryQueueEntry
	if err := s.readJSON(ctx, models.RetryQueueKey, &storedQueue); err != nil {
		s.logger.Warn().Err(err).Str("key", models.RetryQueueKey).Msg("failed to load retry queue")
		storedQueue = nil
	}

	items, queue, dropped, requeued := reconcile(stored, storedQueue)
	if dropped > 0 || requeued > 0 {
		s.logger.Info().Int("dropped", dropped).Int("requeued", requeued).Msg("reconciled persisted timeline")
	}
	return items, queue, requeued
}

// reconcile indexes items by id and drops retry entries whose item is gone.
// Duplicate ids keep the copy with the newest updatedAt. An item in error
// that still promises a retry but has no queue entry gets one, due at once.
func reconcile(items []models.TimelineItem, queue []models.RetryQueueEntry) (map[string]*models.TimelineItem, []models.RetryQueueEntry, int, int) {
	byID := make(map[string]*models.TimelineItem, len(items))
	dropped := 0
	for i := range items {
		item := items[i]
		if item.ID == "" {
			dropped++
			continue
		}
		if existing, ok := byID[item.ID]; ok {
			dropped++
			if !item.UpdatedAt.After(existing.UpdatedAt) {
				continue
			}
		}
		byID[item.ID] = &item
	}

	kept := make([]models.RetryQueueEntry, 0, len(queue))
	seen := make(map[string]int, len(queue))
	for _, entry := range queue {
		if _, ok := byID[entry.ID]; !ok {
			dropped++
			continue
		}
		if idx, dup := seen[entry.ID]; dup {
			dropped++
			if entry.UpdatedAt.After(kept[idx].UpdatedAt) {
				kept[idx] = entry
			}
			continue
		}
		seen[entry.ID] = len(kept)
		kept = append(kept, entry)
	}

	requeued := 0
	for _, item := range byID {
		if item.Status != models.StatusError || !item.WillRetry {
			continue
		}
		if _, queued := seen[item.ID]; queued {
			continue
		}
		kept = append(kept, models.RetryQueueEntry{
			TimelineItem: *item,
			LastError:    item.Error,
			NextRetryAt:  item.UpdatedAt,
		})
		requeued++
	}
	return byID, kept, dropped, requeued
}

func (s *Store) readJSON(ctx context.Context, key string, dst any) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) writeJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(context.WithoutCancel(ctx), key, raw)
}

// saveItemsLocked rewrites the items key. Failures are logged and returned;
// the in-memory state stays authoritative either way.
func (s *Store) saveItemsLocked(ctx context.Context) error {
	if err := s.writeJSON(ctx, models.ItemsKey, s.sortedItemsLocked()); err != nil {
		s.logger.Error().Err(err).Str("key", models.ItemsKey).Msg("failed to persist timeline items")
		return s.wrapPersistErr("timeline items", err)
	}
	return nil
}

func (s *Store) saveQueueLocked(ctx context.Context) error {
	queue := s.retryQueue
	if queue == nil {
		queue = []models.RetryQueueEntry{}
	}
	if err := s.writeJSON(ctx, models.RetryQueueKey, queue); err != nil {
		s.logger.Error().Err(err).Str("key", models.RetryQueueKey).Msg("failed to persist retry queue")
		return s.wrapPersistErr("retry queue", err)
	}
	return nil
}

package timeline

import (
	"context"
	"errors"
	"net"

	"lifestory/internal/events"
	"lifestory/internal/metrics"
	"lifestory/internal/models"
)

// IsRetryable reports whether an upload failure is transient. Errors that
// classify themselves through a Retryable method decide on their own;
// timeouts and network errors are retryable; everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrUnknownItemType) || errors.Is(err, context.Canceled) {
		return false
	}
	var classified interface{ Retryable() bool }
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// HandleUploadFailure records a failed upload. Retryable failures under the
// retry limit increment retryCount and upsert a retry queue entry due after
// the backoff delay; all other failures leave the item in error for good.
func (s *Store) HandleUploadFailure(ctx context.Context, itemID string, uploadErr error) {
	msg := "upload failed"
	if uploadErr != nil {
		msg = uploadErr.Error()
	}

	s.mu.Lock()
	item, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return
	}

	now := s.now()
	willRetry := IsRetryable(uploadErr) && s.opts.RetryPolicy.CanRetry(item.RetryCount)
	if willRetry {
		attempt := item.RetryCount + 1
		item.RetryCount = attempt
		item.MarkError(msg, true, now)
		entry := models.RetryQueueEntry{
			TimelineItem: *item,
			LastError:    msg,
			NextRetryAt:  now.Add(s.opts.RetryPolicy.NextDelay(attempt)),
		}
		s.removeFromQueueLocked(itemID)
		s.retryQueue = append(s.retryQueue, entry)
		_ = s.saveQueueLocked(ctx)
	} else {
		item.MarkError(msg, false, now)
	}
	failed := *item
	_ = s.saveItemsLocked(ctx)
	s.mu.Unlock()

	log := s.logger.With().Str("item_id", itemID).Int("retry_count", failed.RetryCount).Err(uploadErr).Logger()
	if willRetry {
		metrics.IncRetryScheduled()
		log.Info().Msg("upload failed, retry scheduled")
	} else {
		metrics.IncTerminalFailure(string(failed.Type))
		log.Warn().Msg("upload failed permanently")
	}

	s.notify()
	s.publishItem(events.EventItemFailed, failed)
}

// ProcessRetryQueue re-dispatches every entry whose nextRetryAt has passed.
// Due entries leave the queue, their stored copy is restored as a pending
// item, and the upload starts again. Entries for deleted items are skipped.
func (s *Store) ProcessRetryQueue(ctx context.Context) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	now := s.now()
	var due []models.RetryQueueEntry
	remaining := s.retryQueue[:0:0]
	for _, entry := range s.retryQueue {
		if entry.Due(now) {
			due = append(due, entry)
		} else {
			remaining = append(remaining, entry)
		}
	}
	if len(due) == 0 {
		s.mu.Unlock()
		return
	}
	s.retryQueue = remaining

	restored := make([]string, 0, len(due))
	for _, entry := range due {
		current, ok := s.items[entry.ID]
		if !ok {
			continue
		}
		item := entry.TimelineItem
		item.SetStatus(models.StatusPending, now)
		*current = item
		restored = append(restored, item.ID)
	}
	_ = s.saveQueueLocked(ctx)
	_ = s.saveItemsLocked(ctx)
	s.mu.Unlock()

	s.logger.Info().Int("due", len(due)).Int("restored", len(restored)).Msg("processing retry queue")
	s.notify()
	for _, id := range restored {
		s.dispatch(id)
	}
}

// RetryItem manually retries an item in the error status. It increments
// retryCount, drops any queued retry for the item and dispatches the upload
// immediately. Items that are missing or not in error are left alone.
func (s *Store) RetryItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	item, ok := s.items[itemID]
	if !ok || item.Status != models.StatusError {
		s.mu.Unlock()
		return nil
	}
	item.RetryCount++
	item.SetStatus(models.StatusPending, s.now())
	var persistErr error
	if s.removeFromQueueLocked(itemID) {
		persistErr = s.saveQueueLocked(ctx)
	}
	if err := s.saveItemsLocked(ctx); err != nil {
		persistErr = err
	}
	retryCount := item.RetryCount
	s.mu.Unlock()

	s.logger.Info().Str("item_id", itemID).Int("retry_count", retryCount).Msg("manual retry")
	s.notify()
	s.dispatch(itemID)
	return persistErr
}

// DeleteItem removes the item and any retry queue entry with its id.
// Deleting an unknown id is a no-op.
func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	_, existed := s.items[itemID]
	delete(s.items, itemID)
	queued := s.removeFromQueueLocked(itemID)
	if !existed && !queued {
		s.mu.Unlock()
		return nil
	}
	var persistErr error
	if err := s.saveItemsLocked(ctx); err != nil {
		persistErr = err
	}
	if err := s.saveQueueLocked(ctx); err != nil {
		persistErr = err
	}
	s.mu.Unlock()

	s.logger.Info().Str("item_id", itemID).Msg("item deleted")
	s.notify()
	return persistErr
}

package timeline

import (
	"context"
	"errors"
	"time"

	"lifestory/internal/events"
	"lifestory/internal/metrics"
	"lifestory/internal/models"
)

const transcriptionTimedOut = "transcription timed out"

// startPolling begins the transcription loop for a voice item that was
// re-keyed to serverID.
func (s *Store) startPolling(serverID string) {
	var deadline time.Time
	if s.opts.PollTimeout > 0 {
		deadline = s.now().Add(s.opts.PollTimeout)
	}
	s.schedulePoll(serverID, 0, deadline)
}

func (s *Store) schedulePoll(itemID string, delay time.Duration, deadline time.Time) {
	s.scheduler.After("transcription-poll", delay, func(ctx context.Context) {
		s.pollTranscription(ctx, itemID, deadline)
	})
}

// pollTranscription queries the transcription status once and reschedules
// itself until the server reports completed or failed. The loop ends when
// the item is deleted or no longer transcribing, and when the deadline
// passes.
func (s *Store) pollTranscription(ctx context.Context, itemID string, deadline time.Time) {
	item, ok := s.GetItem(itemID)
	if !ok || item.Status != models.StatusTranscribing {
		return
	}
	if !deadline.IsZero() && s.now().After(deadline) {
		s.failTranscription(ctx, itemID, transcriptionTimedOut)
		return
	}

	status, err := s.uploader.GetVoiceMemoStatus(ctx, itemID)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str("item_id", itemID).Msg("transcription status check failed")
		s.schedulePoll(itemID, s.opts.PollErrorInterval, deadline)
		return
	}

	switch status.Status {
	case models.TranscriptionCompleted:
		s.FinalizeItem(ctx, itemID, FinalizeData{Status: models.StatusDone, Transcript: status.Transcript})
	case models.TranscriptionFailed:
		s.failTranscription(ctx, itemID, "transcription failed")
	default:
		s.schedulePoll(itemID, s.opts.PollInterval, deadline)
	}
}

// failTranscription moves a transcribing item to a terminal error.
func (s *Store) failTranscription(ctx context.Context, itemID, msg string) {
	s.mu.Lock()
	item, ok := s.items[itemID]
	if !ok || item.Status != models.StatusTranscribing {
		s.mu.Unlock()
		return
	}
	item.MarkError(msg, false, s.now())
	failed := *item
	_ = s.saveItemsLocked(ctx)
	s.mu.Unlock()

	metrics.IncTerminalFailure(string(failed.Type))
	s.logger.Warn().Str("item_id", itemID).Str("reason", msg).Msg("transcription ended in error")
	s.notify()
	s.publishItem(events.EventItemFailed, failed)
}

// resume re-dispatches uploads interrupted by the previous shutdown and
// restarts polling for voice items still transcribing.
func (s *Store) resume() {
	s.mu.Lock()
	var uploads, polls []string
	for id, item := range s.items {
		switch item.Status {
		case models.StatusPending, models.StatusUploading:
			if !s.inQueueLocked(id) {
				uploads = append(uploads, id)
			}
		case models.StatusTranscribing:
			if item.Type == models.ItemTypeVoice && item.ServerSynced && !item.IsTemporary() {
				polls = append(polls, id)
			}
		}
	}
	s.mu.Unlock()

	if len(uploads)+len(polls) > 0 {
		s.logger.Info().Int("uploads", len(uploads)).Int("polls", len(polls)).Msg("resuming interrupted work")
	}
	for _, id := range uploads {
		s.dispatch(id)
	}
	for _, id := range polls {
		s.startPolling(id)
	}
}

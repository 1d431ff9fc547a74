package timeline

import (
	"context"
	"errors"
	"fmt"

	"lifestory/internal/events"
	"lifestory/internal/metrics"
	"lifestory/internal/models"
)

// FinalizeData carries the server-returned fields merged into an item.
type FinalizeData struct {
	ID         string
	Status     models.ItemStatus
	AudioURL   string
	Transcript string
}

// AddPendingItem inserts a pending item with a temporary id, persists it,
// notifies subscribers and starts the upload in the background. A
// persistence failure is returned together with the item, which stays in
// memory and is still uploaded.
func (s *Store) AddPendingItem(ctx context.Context, payload models.Payload) (*models.TimelineItem, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is required", models.ErrInvalidPayload)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	item := models.NewTimelineItem(s.newTempID(), payload, s.now())
	stored := item
	s.items[item.ID] = &stored
	persistErr := s.saveItemsLocked(ctx)
	s.mu.Unlock()

	s.logger.Debug().Str("item_id", item.ID).Str("type", string(item.Type)).Msg("pending item added")
	s.notify()
	s.dispatch(item.ID)

	return &item, persistErr
}

func (s *Store) dispatch(itemID string) {
	if !s.scheduler.Go("upload", func(ctx context.Context) { s.upload(ctx, itemID) }) {
		s.logger.Warn().Str("item_id", itemID).Msg("store closed, upload deferred to next start")
	}
}

// upload marks the item uploading and sends it with the request matching
// its type.
func (s *Store) upload(ctx context.Context, itemID string) {
	s.mu.Lock()
	current, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return
	}
	current.SetStatus(models.StatusUploading, s.now())
	item := *current
	_ = s.saveItemsLocked(ctx)
	s.mu.Unlock()
	s.notify()

	result, err := s.send(ctx, item)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			s.logger.Info().Str("item_id", itemID).Msg("upload interrupted by shutdown")
			return
		}
		metrics.ObserveUpload(string(item.Type), "failure")
		s.HandleUploadFailure(ctx, itemID, err)
		return
	}
	metrics.ObserveUpload(string(item.Type), "success")
	if result == nil {
		result = &models.ServerResult{}
	}

	data := FinalizeData{ID: result.ID, AudioURL: result.AudioURL}
	if item.Type == models.ItemTypeVoice && result.ID != "" {
		data.Status = models.StatusTranscribing
		if _, ok := s.FinalizeItem(ctx, itemID, data); ok {
			s.startPolling(result.ID)
		}
		return
	}
	if reported := models.ItemStatus(result.Status); reported != "" && reported != models.StatusDone {
		s.logger.Debug().Str("item_id", itemID).Str("server_status", result.Status).Msg("server status ignored, item is done")
	}
	data.Status = models.StatusDone
	s.FinalizeItem(ctx, itemID, data)
}

func (s *Store) send(ctx context.Context, item models.TimelineItem) (*models.ServerResult, error) {
	payload, err := item.Payload()
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, item.Type)
	}

	switch p := payload.(type) {
	case models.TextPayload:
		return s.uploader.SubmitTextMemo(ctx, models.TextMemoRequest{
			Content:   p.Content,
			Title:     p.Title,
			AddToBook: p.AddToBook,
			Source:    s.opts.Source,
		})
	case models.VoicePayload:
		return s.uploader.SubmitVoiceMemo(ctx, models.VoiceMemoRequest{
			AudioPath: p.AudioPath,
			Title:     p.Title,
			AddToBook: p.AddToBook,
			Source:    s.opts.Source,
		})
	case models.InterviewAnswerPayload:
		return s.uploader.SubmitInterviewAnswer(ctx, models.InterviewAnswerRequest{
			SessionID:  p.SessionID,
			QuestionID: p.QuestionID,
			Content:    p.Content,
			AnswerType: p.AnswerType,
			AudioPath:  p.AudioPath,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, payload.Kind())
	}
}

// FinalizeItem merges server data into the item identified by tempID and
// re-keys it to the server id. A missing item is a no-op and reports false.
// The status defaults to done when the server reports none.
func (s *Store) FinalizeItem(ctx context.Context, tempID string, data FinalizeData) (models.TimelineItem, bool) {
	s.mu.Lock()
	item, ok := s.items[tempID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug().Str("item_id", tempID).Msg("finalize for unknown item ignored")
		return models.TimelineItem{}, false
	}

	newID := tempID
	if data.ID != "" {
		newID = data.ID
	}
	if newID != tempID {
		if _, taken := s.items[newID]; taken {
			s.logger.Warn().Str("item_id", tempID).Str("server_id", newID).Msg("server id already present, replacing")
		}
		delete(s.items, tempID)
		s.items[newID] = item
		s.aliases[tempID] = newID
	}

	status := data.Status
	if !status.Valid() || status == models.StatusPending || status == models.StatusUploading {
		status = models.StatusDone
	}
	item.ID = newID
	item.ServerSynced = true
	if data.AudioURL != "" {
		item.AudioURL = data.AudioURL
	}
	if data.Transcript != "" {
		item.Transcript = data.Transcript
	}
	item.SetStatus(status, s.now())
	finalized := *item

	queueChanged := s.removeFromQueueLocked(tempID)
	_ = s.saveItemsLocked(ctx)
	if queueChanged {
		_ = s.saveQueueLocked(ctx)
	}
	s.mu.Unlock()

	s.logger.Info().Str("item_id", tempID).Str("server_id", newID).Str("status", string(status)).Msg("item finalized")
	s.notify()
	s.publishItem(events.EventItemFinalized, finalized)
	return finalized, true
}

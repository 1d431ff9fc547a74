package domain

import (
	"context"
	"time"

	"lifestory/internal/models"
)

// KVStore is the durable key-value storage the timeline persists to.
// Get returns (nil, nil) when the key does not exist.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Uploader submits timeline items to the upload API.
type Uploader interface {
	SubmitTextMemo(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error)
	SubmitVoiceMemo(ctx context.Context, req models.VoiceMemoRequest) (*models.ServerResult, error)
	SubmitInterviewAnswer(ctx context.Context, req models.InterviewAnswerRequest) (*models.ServerResult, error)
	GetVoiceMemoStatus(ctx context.Context, serverID string) (*models.TranscriptionStatus, error)
}

// Clock abstracts wall time so tests can control backoff deadlines.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TimelineObserver receives the full state after every store mutation.
type TimelineObserver func(state models.TimelineState) error

// TimelineService is the surface the CLI and other callers use.
type TimelineService interface {
	AddPendingItem(ctx context.Context, payload models.Payload) (*models.TimelineItem, error)
	RetryItem(ctx context.Context, itemID string) error
	DeleteItem(ctx context.Context, itemID string) error
	GetItems(filter models.ItemFilter) []models.TimelineItem
	GetItem(itemID string) (models.TimelineItem, bool)
	GetStats() models.TimelineStats
	Subscribe(observer TimelineObserver) (unsubscribe func())
}

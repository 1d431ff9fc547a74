package models

import (
	"fmt"
	"time"
)

// TimelineItem is a user-authored entry tracked from optimistic insertion
// until the server confirms it.
type TimelineItem struct {
	ID     string     `json:"id"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status"`

	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	AudioPath  string `json:"audioPath,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	AnswerType string `json:"answerType,omitempty"`

	AddToBook    bool      `json:"addToBook"`
	RetryCount   int       `json:"retryCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ServerSynced bool      `json:"serverSynced"`

	Error     string `json:"error,omitempty"`
	WillRetry bool   `json:"willRetry,omitempty"`
}

// NewTimelineItem builds a pending item from a payload.
func NewTimelineItem(id string, payload Payload, now time.Time) TimelineItem {
	item := TimelineItem{
		ID:        id,
		Type:      payload.Kind(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	payload.apply(&item)
	return item
}

// Payload rebuilds the kind-specific variant from the flat item fields.
func (i TimelineItem) Payload() (Payload, error) {
	switch i.Type {
	case ItemTypeText:
		return TextPayload{Content: i.Content, Title: i.Title, AddToBook: i.AddToBook}, nil
	case ItemTypeVoice:
		return VoicePayload{AudioPath: i.AudioPath, Title: i.Title, AddToBook: i.AddToBook}, nil
	case ItemTypeInterviewAnswer:
		return InterviewAnswerPayload{
			SessionID:  i.SessionID,
			QuestionID: i.QuestionID,
			Content:    i.Content,
			AnswerType: i.AnswerType,
			AudioPath:  i.AudioPath,
			AddToBook:  i.AddToBook,
		}, nil
	default:
		return nil, fmt.Errorf("unknown item type: %q", i.Type)
	}
}

// IsTemporary reports whether the item still carries a device-generated id.
func (i TimelineItem) IsTemporary() bool {
	return len(i.ID) >= len(TempIDPrefix) && i.ID[:len(TempIDPrefix)] == TempIDPrefix
}

// MarkError moves the item into the error status.
func (i *TimelineItem) MarkError(msg string, willRetry bool, now time.Time) {
	i.Status = StatusError
	i.Error = msg
	i.WillRetry = willRetry
	i.UpdatedAt = now
}

// SetStatus changes the status and clears stale error fields.
func (i *TimelineItem) SetStatus(status ItemStatus, now time.Time) {
	i.Status = status
	if status != StatusError {
		i.Error = ""
		i.WillRetry = false
	}
	i.UpdatedAt = now
}

// RetryQueueEntry is a failed item awaiting a scheduled re-attempt.
type RetryQueueEntry struct {
	TimelineItem
	LastError   string    `json:"lastError"`
	NextRetryAt time.Time `json:"nextRetryAt"`
}

// Due reports whether the entry's deadline has elapsed at now.
func (e RetryQueueEntry) Due(now time.Time) bool {
	return !e.NextRetryAt.After(now)
}

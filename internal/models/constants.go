package models

import "time"

// ItemType discriminates how a timeline item is uploaded.
type ItemType string

const (
	ItemTypeText            ItemType = "text"
	ItemTypeVoice           ItemType = "voice"
	ItemTypeInterviewAnswer ItemType = "interview_answer"
)

// ItemStatus is the lifecycle state of a timeline item.
type ItemStatus string

const (
	StatusPending      ItemStatus = "pending"
	StatusUploading    ItemStatus = "uploading"
	StatusTranscribing ItemStatus = "transcribing"
	StatusDone         ItemStatus = "done"
	StatusError        ItemStatus = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ItemStatus{StatusPending, StatusUploading, StatusTranscribing, StatusDone, StatusError}

// Transcription states reported by the upload API.
const (
	TranscriptionCompleted  = "completed"
	TranscriptionFailed     = "failed"
	TranscriptionProcessing = "processing"
)

const (
	// TempIDPrefix marks ids generated on the device before server confirmation.
	TempIDPrefix = "temp_"

	// DefaultSource is the source tag sent with every memo.
	DefaultSource = "mobile_app"

	// Persisted keys, relative to the configured key prefix.
	ItemsKey      = "timeline_items"
	RetryQueueKey = "timeline_retry_queue"
)

const (
	DefaultRetryInterval     = 30 * time.Second
	DefaultBaseBackoff       = 5 * time.Second
	DefaultMaxRetries        = 3
	DefaultPollInterval      = 3 * time.Second
	DefaultPollErrorInterval = 5 * time.Second
	DefaultPollTimeout       = 10 * time.Minute
)

// Valid reports whether t is a known upload kind.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeText, ItemTypeVoice, ItemTypeInterviewAnswer:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle status.
func (s ItemStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload is returned when a payload misses a required field.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is the kind-specific content of a new timeline item.
// Implementations: TextPayload, VoicePayload, InterviewAnswerPayload.
type Payload interface {
	Kind() ItemType
	Validate() error
	apply(item *TimelineItem)
}

// TextPayload is a written memo.
type TextPayload struct {
	Content   string
	Title     string
	AddToBook bool
}

// VoicePayload is a recorded memo stored on the local filesystem.
type VoicePayload struct {
	AudioPath string
	Title     string
	AddToBook bool
}

// InterviewAnswerPayload is an answer to a guided interview question.
type InterviewAnswerPayload struct {
	SessionID  string
	QuestionID string
	Content    string
	AnswerType string
	AudioPath  string
	AddToBook  bool
}

func (TextPayload) Kind() ItemType            { return ItemTypeText }
func (VoicePayload) Kind() ItemType           { return ItemTypeVoice }
func (InterviewAnswerPayload) Kind() ItemType { return ItemTypeInterviewAnswer }

func (p TextPayload) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: text content is required", ErrInvalidPayload)
	}
	return nil
}

func (p VoicePayload) Validate() error {
	if strings.TrimSpace(p.AudioPath) == "" {
		return fmt.Errorf("%w: audio path is required", ErrInvalidPayload)
	}
	return nil
}

func (p InterviewAnswerPayload) Validate() error {
	if p.SessionID == "" || p.QuestionID == "" {
		return fmt.Errorf("%w: session and question ids are required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Content) == "" && p.AudioPath == "" {
		return fmt.Errorf("%w: answer content or audio is required", ErrInvalidPayload)
	}
	return nil
}

func (p TextPayload) apply(item *TimelineItem) {
	item.Content = p.Content
	item.Title = p.Title
	item.AddToBook = p.AddToBook
}

func (p VoicePayload) apply(item *TimelineItem) {
	item.AudioPath = p.AudioPath
	item.Title = p.Title
	item.AddToBook = p.AddToBook
}

func (p InterviewAnswerPayload) apply(item *TimelineItem) {
	item.SessionID = p.SessionID
	item.QuestionID = p.QuestionID
	item.Content = p.Content
	item.AnswerType = p.AnswerType
	item.AudioPath = p.AudioPath
	item.AddToBook = p.AddToBook
}

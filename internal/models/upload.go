package models

// TextMemoRequest is sent to the text memo endpoint.
type TextMemoRequest struct {
	Content   string `json:"content"`
	Title     string `json:"title,omitempty"`
	AddToBook bool   `json:"addToBook"`
	Source    string `json:"source"`
}

// VoiceMemoRequest is sent as multipart form data; AudioPath is read from disk.
type VoiceMemoRequest struct {
	AudioPath string
	Title     string
	AddToBook bool
	Source    string
}

// InterviewAnswerRequest is sent to the interview answer endpoint.
type InterviewAnswerRequest struct {
	SessionID  string `json:"sessionId"`
	QuestionID string `json:"questionId"`
	Content    string `json:"content"`
	AnswerType string `json:"answerType,omitempty"`
	AudioPath  string `json:"audioPath,omitempty"`
}

// ServerResult is the server's acknowledgement of an upload.
type ServerResult struct {
	ID       string `json:"id"`
	Status   string `json:"status,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// TranscriptionStatus is the server's view of a voice memo transcription.
type TranscriptionStatus struct {
	Status     string `json:"status"`
	Transcript string `json:"transcript,omitempty"`
}

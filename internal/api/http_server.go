package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"lifestory/internal/config"
	"lifestory/internal/metrics"
	"lifestory/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxAudioBytes = 50 << 20

// memo is a record held by the mock upload API.
type memo struct {
	ID         string
	Kind       models.ItemType
	Title      string
	Content    string
	AddToBook  bool
	Source     string
	AudioBytes int64
	Polls      int
	CreatedAt  time.Time
}

// HTTPServer is a mock of the upload API. Voice memo transcription is
// stubbed: a memo reports "processing" for a configured number of polls and
// then "completed" with a placeholder transcript.
type HTTPServer struct {
	cfg    config.MockAPIConfig
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger

	mu    sync.Mutex
	memos map[string]*memo
}

func NewHTTPServer(cfg config.MockAPIConfig, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "mock-api").Logger()
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, logger: base, memos: make(map[string]*memo)}
	srv.auth = NewHTTPAuth(cfg.Auth, cfg.RateLimit)

	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/v1/memos/text", srv.handleTextMemo)
	mux.HandleFunc("/api/v1/memos/voice", srv.handleVoiceMemo)
	mux.HandleFunc("/api/v1/memos/voice/", srv.handleVoiceStatus)
	mux.HandleFunc("/api/v1/interview/answers", srv.handleInterviewAnswer)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler exposes the full middleware chain, for httptest servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("mock upload API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleTextMemo(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("text_memo")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body models.TextMemoRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	m := s.store(&memo{
		Kind:      models.ItemTypeText,
		Title:     body.Title,
		Content:   body.Content,
		AddToBook: body.AddToBook,
		Source:    body.Source,
	})
	writeJSON(w, http.StatusCreated, models.ServerResult{ID: m.ID, Status: string(models.StatusDone)})
}

func (s *HTTPServer) handleVoiceMemo(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("voice_memo")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio failed")
		return
	}

	addToBook, _ := strconv.ParseBool(r.FormValue("addToBook"))
	m := s.store(&memo{
		Kind:       models.ItemTypeVoice,
		Title:      r.FormValue("title"),
		AddToBook:  addToBook,
		Source:     r.FormValue("source"),
		AudioBytes: size,
	})
	writeJSON(w, http.StatusCreated, models.ServerResult{
		ID:       m.ID,
		Status:   string(models.StatusTranscribing),
		AudioURL: "/media/" + m.ID,
	})
}

func (s *HTTPServer) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("voice_status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/memos/voice/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	id, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != "status" || id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.mu.Lock()
	m, exists := s.memos[id]
	var resp models.TranscriptionStatus
	if exists {
		m.Polls++
		if m.Polls > s.cfg.TranscriptionPolls {
			resp = models.TranscriptionStatus{
				Status:     models.TranscriptionCompleted,
				Transcript: fmt.Sprintf("[transcript of %q, %d bytes]", m.Title, m.AudioBytes),
			}
		} else {
			resp = models.TranscriptionStatus{Status: models.TranscriptionProcessing}
		}
	}
	s.mu.Unlock()

	if !exists || m.Kind != models.ItemTypeVoice {
		writeError(w, http.StatusNotFound, "voice memo not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleInterviewAnswer(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("interview_answer")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body models.InterviewAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SessionID == "" || body.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId and questionId are required")
		return
	}

	m := s.store(&memo{Kind: models.ItemTypeInterviewAnswer, Content: body.Content})
	writeJSON(w, http.StatusCreated, models.ServerResult{ID: m.ID})
}

func (s *HTTPServer) store(m *memo) *memo {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.memos[m.ID] = m
	s.mu.Unlock()
	return m
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get(requestIDHeader)).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

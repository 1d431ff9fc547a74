package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"lifestory/internal/config"
	"lifestory/internal/models"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	pathTextMemo        = "/api/v1/memos/text"
	pathVoiceMemo       = "/api/v1/memos/voice"
	pathInterviewAnswer = "/api/v1/interview/answers"
	requestIDHeader     = "x-request-id"
)

// UploadClient calls the upload API over HTTP.
type UploadClient struct {
	baseURL      string
	apiKey       string
	apiExtra     string
	headerAPIKey string
	headerExtra  string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// NewUploadClient builds a client from API configuration. A positive
// rate_limit.rps throttles outgoing requests.
func NewUploadClient(cfg config.APIConfig) *UploadClient {
	c := &UploadClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		apiExtra:     cfg.APIExtra,
		headerAPIKey: cfg.HeaderAPIKey,
		headerExtra:  cfg.HeaderExtra,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
	if c.headerAPIKey == "" {
		c.headerAPIKey = "x-api-key"
	}
	if c.headerExtra == "" {
		c.headerExtra = "x-api-extra"
	}
	if cfg.RateLimit.RPS > 0 {
		c.limiter = newLimiter(cfg.RateLimit)
	}
	return c
}

// SubmitTextMemo uploads a written memo.
func (c *UploadClient) SubmitTextMemo(ctx context.Context, req models.TextMemoRequest) (*models.ServerResult, error) {
	var resp models.ServerResult
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+pathTextMemo, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitVoiceMemo uploads the audio file at req.AudioPath as multipart form data.
func (c *UploadClient) SubmitVoiceMemo(ctx context.Context, req models.VoiceMemoRequest) (*models.ServerResult, error) {
	body, contentType, err := buildVoiceForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathVoiceMemo, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	var resp models.ServerResult
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitInterviewAnswer uploads an answer to an interview question.
func (c *UploadClient) SubmitInterviewAnswer(ctx context.Context, req models.InterviewAnswerRequest) (*models.ServerResult, error) {
	var resp models.ServerResult
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+pathInterviewAnswer, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetVoiceMemoStatus queries the transcription state of an uploaded voice memo.
func (c *UploadClient) GetVoiceMemoStatus(ctx context.Context, serverID string) (*models.TranscriptionStatus, error) {
	endpoint := fmt.Sprintf("%s%s/%s/status", c.baseURL, pathVoiceMemo, url.PathEscape(serverID))
	var resp models.TranscriptionStatus
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func buildVoiceForm(req models.VoiceMemoRequest) (io.Reader, string, error) {
	audio, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer audio.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("audio", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}

	fields := map[string]string{
		"title":     req.Title,
		"addToBook": strconv.FormatBool(req.AddToBook),
		"source":    req.Source,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func (c *UploadClient) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *UploadClient) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return &NetworkError{Op: req.URL.Path, Err: err}
		}
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeHTTPError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		if truncated(err) {
			return &NetworkError{Op: req.URL.Path, Err: err}
		}
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// truncated reports whether a body read failed because the connection
// ended early rather than because the payload was malformed.
func truncated(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func decodeHTTPError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: body.Error}
}

func (c *UploadClient) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(c.headerAPIKey, c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set(c.headerExtra, c.apiExtra)
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
}

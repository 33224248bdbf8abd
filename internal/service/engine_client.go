package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"ethics_gate_backend/internal/config"
	"ethics_gate_backend/internal/util"
	"ethics_gate_backend/pkg/monitoring"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// EngineClient wraps the external assessment engine's REST protocol. It is
// the only component that talks to the engine; everything else sees
// sessions, questions and results.
type EngineClient struct {
	mu     sync.RWMutex
	config config.EngineConfig
	client *http.Client
}

func NewEngineClient(cfg config.EngineConfig) *EngineClient {
	return &EngineClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// UpdateConfig swaps the engine endpoint settings, for hot config reload.
// In-flight requests finish against the old settings.
func (s *EngineClient) UpdateConfig(cfg config.EngineConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.client = &http.Client{Timeout: cfg.RequestTimeout}
}

func (s *EngineClient) settings() (config.EngineConfig, *http.Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.client
}

// EngineQuestion is one prompt in a running session.
type EngineQuestion struct {
	ID      string   `json:"id"`
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// EngineResult is the engine's scored outcome for a completed session.
type EngineResult struct {
	RunID          string             `json:"runId"`
	SessionID      string             `json:"sessionId"`
	Scores         map[string]float64 `json:"scores"`
	Passed         bool               `json:"passed"`
	Classification string             `json:"classification"`
	VerifyURL      string             `json:"verifyUrl,omitempty"`
}

// AskFunc is supplied by the messaging transport: given a question, return
// the user's answer.
type AskFunc func(ctx context.Context, q EngineQuestion) (string, error)

// ProgressFunc reports answered/total after each accepted answer.
type ProgressFunc func(answered, total int)

type startSessionRequest struct {
	FrameworkID string `json:"frameworkId"`
}

type startSessionResponse struct {
	SessionID     string `json:"sessionId"`
	QuestionCount int    `json:"questionCount"`
}

type nextQuestionResponse struct {
	Done     bool            `json:"done"`
	Question *EngineQuestion `json:"question,omitempty"`
}

type submitAnswerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// StartSession opens a new engine session for the given framework.
func (s *EngineClient) StartSession(ctx context.Context, frameworkID string) (string, int, error) {
	var resp startSessionResponse
	err := s.do(ctx, "start", http.MethodPost, "/v1/sessions", startSessionRequest{FrameworkID: frameworkID}, &resp)
	if err != nil {
		return "", 0, err
	}
	return resp.SessionID, resp.QuestionCount, nil
}

// NextQuestion fetches the next unanswered question, or done=true when the
// session is complete and a result can be fetched.
func (s *EngineClient) NextQuestion(ctx context.Context, sessionID string) (*EngineQuestion, bool, error) {
	var resp nextQuestionResponse
	err := s.do(ctx, "next_question", http.MethodGet, "/v1/sessions/"+sessionID+"/next", nil, &resp)
	if err != nil {
		return nil, false, err
	}
	return resp.Question, resp.Done, nil
}

// SubmitAnswer submits one answer. A 422 means the engine rejected the
// answer's form (re-prompt, the run is not failed); a 410 means the session
// expired server-side.
func (s *EngineClient) SubmitAnswer(ctx context.Context, sessionID, questionID, answer string) error {
	return s.do(ctx, "submit_answer", http.MethodPost, "/v1/sessions/"+sessionID+"/answers",
		submitAnswerRequest{QuestionID: questionID, Answer: answer}, nil)
}

// GetResult fetches the scored result of a completed session.
func (s *EngineClient) GetResult(ctx context.Context, sessionID string) (*EngineResult, error) {
	var result EngineResult
	err := s.do(ctx, "result", http.MethodGet, "/v1/sessions/"+sessionID+"/result", nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// IsResultValid checks the result's shape before it is recorded.
func (s *EngineClient) IsResultValid(result *EngineResult) bool {
	return result != nil && result.RunID != "" && len(result.Scores) > 0
}

// RunAssessment drives the question loop for a session: fetch question, ask
// the user, submit, repeat. Rejected answers re-prompt without failing the
// run. On upstream failure the session stays resumable and the caller gets
// ErrUpstreamUnavailable.
func (s *EngineClient) RunAssessment(ctx context.Context, sessionID string, ask AskFunc, onProgress ProgressFunc) (*EngineResult, error) {
	answered := 0
	for {
		q, done, err := s.NextQuestion(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}

		for {
			answer, err := ask(ctx, *q)
			if err != nil {
				return nil, err
			}
			err = s.SubmitAnswer(ctx, sessionID, q.ID, answer)
			if errors.Is(err, util.ErrInvalidAnswer) {
				continue
			}
			if err != nil {
				return nil, err
			}
			break
		}

		answered++
		if onProgress != nil {
			onProgress(answered, q.Total)
		}
	}

	result, err := s.GetResult(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsResultValid(result) {
		return nil, fmt.Errorf("%w: engine returned malformed result", util.ErrUpstreamUnavailable)
	}
	result.SessionID = sessionID
	return result, nil
}

// ResumeAssessment continues an interrupted session. The engine serves the
// next unanswered question, so the loop is the same.
func (s *EngineClient) ResumeAssessment(ctx context.Context, sessionID string, ask AskFunc, onProgress ProgressFunc) (*EngineResult, error) {
	return s.RunAssessment(ctx, sessionID, ask, onProgress)
}

// do issues one engine call with bounded exponential backoff on transport
// errors and 5xx. Client errors map onto the gate's error taxonomy and are
// never retried.
func (s *EngineClient) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	cfg, _ := s.settings()
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		start := time.Now()
		err := s.doOnce(ctx, method, path, payload, out)
		monitoring.EngineCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

		if err == nil {
			return nil
		}
		// taxonomy errors are final; only transport/5xx failures retry
		if errors.Is(err, util.ErrInvalidAnswer) || errors.Is(err, util.ErrSessionExpired) || errors.Is(err, util.ErrSessionNotFound) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, lastErr)
}

func (s *EngineClient) doOnce(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	cfg, client := s.settings()
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if out != nil {
			return json.Unmarshal(respBody, out)
		}
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return util.ErrInvalidAnswer
	case resp.StatusCode == http.StatusGone:
		return util.ErrSessionExpired
	case resp.StatusCode == http.StatusNotFound:
		return util.ErrSessionNotFound
	default:
		return fmt.Errorf("engine API error (status %d): %s", resp.StatusCode, string(respBody))
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"ethics_gate_backend/internal/config"
	"ethics_gate_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, handler http.Handler) *EngineClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEngineClient(config.EngineConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
	})
}

// scriptedEngine serves a fixed question sequence and scores the session
// once every question is answered.
type scriptedEngine struct {
	questions []EngineQuestion
	answered  int
	rejectIDs map[string]bool // questionID -> reject first submission
	rejected  map[string]bool
}

func (e *scriptedEngine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(startSessionResponse{SessionID: "sess-1", QuestionCount: len(e.questions)})
	})
	mux.HandleFunc("GET /v1/sessions/sess-1/next", func(w http.ResponseWriter, r *http.Request) {
		if e.answered >= len(e.questions) {
			json.NewEncoder(w).Encode(nextQuestionResponse{Done: true})
			return
		}
		q := e.questions[e.answered]
		json.NewEncoder(w).Encode(nextQuestionResponse{Question: &q})
	})
	mux.HandleFunc("POST /v1/sessions/sess-1/answers", func(w http.ResponseWriter, r *http.Request) {
		var req submitAnswerRequest
		json.NewDecoder(r.Body).Decode(&req)
		if e.rejectIDs[req.QuestionID] && !e.rejected[req.QuestionID] {
			e.rejected[req.QuestionID] = true
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		e.answered++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/sessions/sess-1/result", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EngineResult{
			RunID:          "run-1",
			Scores:         map[string]float64{"honesty": 88},
			Passed:         true,
			Classification: "strong",
		})
	})
	return mux
}

func TestStartSession(t *testing.T) {
	eng := &scriptedEngine{
		questions: []EngineQuestion{{ID: "q1"}, {ID: "q2"}},
		rejectIDs: map[string]bool{},
		rejected:  map[string]bool{},
	}
	client := newTestEngine(t, eng.handler())

	sid, count, err := client.StartSession(context.Background(), "fw-default")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sid != "sess-1" || count != 2 {
		t.Fatalf("got %s/%d, want sess-1/2", sid, count)
	}
}

func TestRunAssessment(t *testing.T) {
	eng := &scriptedEngine{
		questions: []EngineQuestion{
			{ID: "q1", Index: 1, Total: 3, Prompt: "first"},
			{ID: "q2", Index: 2, Total: 3, Prompt: "second"},
			{ID: "q3", Index: 3, Total: 3, Prompt: "third"},
		},
		rejectIDs: map[string]bool{},
		rejected:  map[string]bool{},
	}
	client := newTestEngine(t, eng.handler())

	var progress []int
	result, err := client.RunAssessment(context.Background(), "sess-1",
		func(ctx context.Context, q EngineQuestion) (string, error) {
			return "answer to " + q.ID, nil
		},
		func(answered, total int) { progress = append(progress, answered) },
	)
	if err != nil {
		t.Fatalf("RunAssessment: %v", err)
	}
	if result.RunID != "run-1" || result.SessionID != "sess-1" {
		t.Fatalf("result = %+v", result)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Fatalf("progress = %v", progress)
	}
}

func TestRunAssessmentRepromptsOnRejectedAnswer(t *testing.T) {
	eng := &scriptedEngine{
		questions: []EngineQuestion{{ID: "q1", Total: 1}},
		rejectIDs: map[string]bool{"q1": true},
		rejected:  map[string]bool{},
	}
	client := newTestEngine(t, eng.handler())

	asks := 0
	result, err := client.RunAssessment(context.Background(), "sess-1",
		func(ctx context.Context, q EngineQuestion) (string, error) {
			asks++
			return "try again", nil
		}, nil)
	if err != nil {
		t.Fatalf("RunAssessment: %v", err)
	}
	if asks != 2 {
		t.Fatalf("asks = %d, want 2 (re-prompt after rejection)", asks)
	}
	if result.RunID != "run-1" {
		t.Fatalf("result = %+v", result)
	}
}

func TestUpstreamFailureExhaustsRetries(t *testing.T) {
	var calls int32
	client := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, _, err := client.StartSession(context.Background(), "fw-default")
	if !errors.Is(err, util.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3 retries", got)
	}
}

func TestCancellationDuringBackoffMapsToUpstream(t *testing.T) {
	client := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	// the first attempt fails fast; the context expires inside the backoff
	// wait, which must still surface as an upstream error
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := client.StartSession(ctx, "fw-default")
	if !errors.Is(err, util.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestSessionGoneMapsToExpired(t *testing.T) {
	client := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))

	err := client.SubmitAnswer(context.Background(), "sess-1", "q1", "late")
	if !errors.Is(err, util.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestMalformedResultRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/sess-1/next", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(nextQuestionResponse{Done: true})
	})
	mux.HandleFunc("GET /v1/sessions/sess-1/result", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EngineResult{}) // no run id, no scores
	})
	client := newTestEngine(t, mux)

	_, err := client.RunAssessment(context.Background(), "sess-1",
		func(ctx context.Context, q EngineQuestion) (string, error) { return "", nil }, nil)
	if !errors.Is(err, util.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestEngineAuthHeader(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(startSessionResponse{SessionID: "sess-1", QuestionCount: 1})
	})
	client := newTestEngine(t, mux)

	if _, _, err := client.StartSession(context.Background(), "fw-default"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

package httpadapter_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/http"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/llm"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/storage/memory"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/finalize"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/report"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/sessions"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/trend"
)

type testServer struct {
	http.Handler
	finalizer *finalize.Finalizer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sessionStore := memory.NewSessionStore()
	trendStore := memory.NewTrendStore()
	mock := llm.NewMockLLM()

	sessionSvc := sessions.NewService(sessionStore)
	finalizer := finalize.NewFinalizer(
		sessionSvc,
		analysis.NewService(mock, time.Second),
		trend.NewRecorder(trendStore),
		finalize.Options{CaptureStopGrace: 100 * time.Millisecond, NotifyTimeout: time.Second},
	)
	t.Cleanup(finalizer.Wait)

	return &testServer{
		Handler: httpadapter.NewServer(httpadapter.Services{
			Sessions:  sessionSvc,
			Finalizer: finalizer,
			Reports:   report.NewService(sessionStore, mock, report.Options{}),
			Trends:    trend.NewService(trendStore),
		}),
		finalizer: finalizer,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type sessionBody struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	CancelReason string   `json:"cancel_reason"`
	FinalScore   *float64 `json:"final_score"`
	Analysis     *struct {
		TextScore float64 `json:"text_score"`
		MoodScore int     `json:"mood_score"`
		RiskLevel string  `json:"risk_level"`
	} `json:"analysis"`
}

func (s *testServer) create(t *testing.T, userID string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/sessions", `{"user_id":"`+userID+`","assessment_type":"checkin","first_name":"Sam"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d, body=%s", w.Code, w.Body.String())
	}
	out := decode[struct {
		Session sessionBody `json:"session"`
	}](t, w)
	if out.Session.Status != "pending" {
		t.Fatalf("expected pending, got %q", out.Session.Status)
	}
	return out.Session.ID
}

const captureBody = `{"turns":[
	{"role":"agent","text":"How has your week been?"},
	{"role":"user","text":"Pretty good overall. I have been sleeping well and went climbing with friends twice."}
]}`

func (s *testServer) complete(t *testing.T, userID string) string {
	t.Helper()
	id := s.create(t, userID)
	if w := s.do(t, http.MethodPost, "/sessions/"+id+"/activate", ""); w.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, "/sessions/"+id+"/capture", captureBody); w.Code != http.StatusOK {
		t.Fatalf("capture: expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	w := s.do(t, http.MethodPost, "/sessions/"+id+"/finalize", "")
	if w.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	return id
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[map[string]string](t, w); got["status"] != "ok" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestCheckInLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := srv.create(t, "u-1")

	w := srv.do(t, http.MethodPost, "/sessions/"+id+"/activate", "")
	if got := decode[sessionBody](t, w); w.Code != http.StatusOK || got.Status != "active" {
		t.Fatalf("activate: %d %s", w.Code, w.Body.String())
	}

	w = srv.do(t, http.MethodPost, "/sessions/"+id+"/capture", captureBody)
	if w.Code != http.StatusOK {
		t.Fatalf("capture: %d %s", w.Code, w.Body.String())
	}

	w = srv.do(t, http.MethodPost, "/sessions/"+id+"/finalize", "")
	if w.Code != http.StatusOK {
		t.Fatalf("finalize: %d %s", w.Code, w.Body.String())
	}
	fin := decode[struct {
		Session  sessionBody `json:"session"`
		Fallback string      `json:"fallback"`
	}](t, w)
	if fin.Fallback != "" {
		t.Fatalf("unexpected fallback %q", fin.Fallback)
	}
	if fin.Session.Status != "completed" || fin.Session.Analysis == nil || fin.Session.FinalScore == nil {
		t.Fatalf("unexpected finalized session %s", w.Body.String())
	}
	if *fin.Session.FinalScore != fin.Session.Analysis.TextScore {
		t.Fatalf("final score %v != text score %v", *fin.Session.FinalScore, fin.Session.Analysis.TextScore)
	}

	w = srv.do(t, http.MethodGet, "/sessions/"+id, "")
	if got := decode[sessionBody](t, w); w.Code != http.StatusOK || got.Status != "completed" {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
}

func TestCreateSupersedesPending(t *testing.T) {
	srv := newTestServer(t)
	first := srv.create(t, "u-1")

	w := srv.do(t, http.MethodPost, "/sessions", `{"user_id":"u-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	out := decode[struct {
		Superseded []string `json:"superseded"`
	}](t, w)
	if len(out.Superseded) != 1 || out.Superseded[0] != first {
		t.Fatalf("expected %s superseded, got %v", first, out.Superseded)
	}

	got := decode[sessionBody](t, srv.do(t, http.MethodGet, "/sessions/"+first, ""))
	if got.Status != "cancelled" || got.CancelReason != "superseded" {
		t.Fatalf("unexpected first session %+v", got)
	}
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	srv := newTestServer(t)
	id := srv.create(t, "u-1")

	// Finalizing a pending session is refused and leaves it untouched.
	w := srv.do(t, http.MethodPost, "/sessions/"+id+"/finalize", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d, body=%s", w.Code, w.Body.String())
	}
	if got := decode[map[string]string](t, w); got["error"] != "invalid_state" {
		t.Fatalf("unexpected body %v", got)
	}

	got := decode[sessionBody](t, srv.do(t, http.MethodGet, "/sessions/"+id, ""))
	if got.Status != "pending" {
		t.Fatalf("expected pending, got %q", got.Status)
	}
}

func TestCancelWithAndWithoutBody(t *testing.T) {
	srv := newTestServer(t)

	id := srv.create(t, "u-1")
	w := srv.do(t, http.MethodPost, "/sessions/"+id+"/cancel", `{"reason":"capture_failed"}`)
	if got := decode[sessionBody](t, w); w.Code != http.StatusOK || got.CancelReason != "capture_failed" {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}

	id = srv.create(t, "u-2")
	w = srv.do(t, http.MethodPost, "/sessions/"+id+"/cancel", "")
	if got := decode[sessionBody](t, w); w.Code != http.StatusOK || got.CancelReason != "user_request" {
		t.Fatalf("cancel without body: %d %s", w.Code, w.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope", "", http.StatusNotFound},
		{"activate unknown session", http.MethodPost, "/sessions/nope/activate", "", http.StatusNotFound},
		{"missing user", http.MethodPost, "/sessions", `{}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/sessions", `{`, http.StatusBadRequest},
		{"bad assessment type", http.MethodPost, "/sessions", `{"user_id":"u-1","assessment_type":"weekly"}`, http.StatusBadRequest},
		{"bad report period", http.MethodGet, "/users/u-1/report?days=10", "", http.StatusBadRequest},
		{"non-numeric days", http.MethodGet, "/users/u-1/report?days=week", "", http.StatusBadRequest},
		{"negative trend limit", http.MethodGet, "/users/u-1/trend?limit=-1", "", http.StatusBadRequest},
		{"bad trend type", http.MethodGet, "/users/u-1/trend?type=weekly", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d, body=%s", tt.want, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Fatalf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestReportNoDataThenRollup(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/users/u-1/report?days=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	empty := decode[map[string]any](t, w)
	if empty["status"] != "no_data" || empty["period_days"] != float64(7) {
		t.Fatalf("unexpected body %v", empty)
	}

	srv.complete(t, "u-1")
	srv.complete(t, "u-1")

	w = srv.do(t, http.MethodGet, "/users/u-1/report", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	bundle := decode[struct {
		PeriodDays   int      `json:"period_days"`
		CheckInCount int      `json:"check_in_count"`
		AverageScore *float64 `json:"average_score"`
		Narrative    string   `json:"narrative"`
	}](t, w)
	if bundle.PeriodDays != 30 || bundle.CheckInCount != 2 || bundle.AverageScore == nil {
		t.Fatalf("unexpected bundle %s", w.Body.String())
	}
	if bundle.Narrative == "" {
		t.Fatal("expected a narrative from the mock narrator")
	}
}

func TestTrendAfterFinalize(t *testing.T) {
	srv := newTestServer(t)
	srv.complete(t, "u-1")
	srv.finalizer.Wait()

	w := srv.do(t, http.MethodGet, "/users/u-1/trend?type=checkin&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	got := decode[struct {
		Points []json.RawMessage `json:"points"`
		Latest *float64          `json:"latest"`
	}](t, w)
	if len(got.Points) != 1 || got.Latest == nil {
		t.Fatalf("unexpected trend %s", w.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	w = srv.do(t, http.MethodGet, "/healthz", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}

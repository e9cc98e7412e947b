package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/finalize"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/report"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/sessions"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/trend"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Sessions  *sessions.Service
	Finalizer *finalize.Finalizer
	Reports   *report.Service
	Trends    *trend.Service
}

type Server struct {
	svc Services
}

func NewServer(svc Services) http.Handler {
	s := &Server{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /sessions/{id}/capture", s.handleCapture)
	mux.HandleFunc("POST /sessions/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancel)

	mux.HandleFunc("GET /users/{id}/report", s.handleReport)
	mux.HandleFunc("GET /users/{id}/trend", s.handleTrend)

	return chainMiddlewares(mux, withRecover, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID         string `json:"user_id"`
	AssessmentType string `json:"assessment_type,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
}

type createSessionResponse struct {
	Session    sessionResponse `json:"session"`
	Superseded []string        `json:"superseded"`
}

type sessionResponse struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	AssessmentType string                 `json:"assessment_type"`
	FirstName      string                 `json:"first_name,omitempty"`
	Status         string                 `json:"status"`
	CancelReason   string                 `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ActivatedAt    *time.Time             `json:"activated_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	CancelledAt    *time.Time             `json:"cancelled_at,omitempty"`
	TextData       *domain.TextData       `json:"text_data,omitempty"`
	VisualData     *domain.VisualData     `json:"visual_data,omitempty"`
	Analysis       *domain.AnalysisResult `json:"analysis,omitempty"`
	FinalScore     *float64               `json:"final_score,omitempty"`
}

type captureRequest struct {
	Turns  []domain.Turn      `json:"turns"`
	Visual *domain.VisualData `json:"visual,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type finalizeResponse struct {
	Session  sessionResponse `json:"session"`
	Fallback string          `json:"fallback,omitempty"`
}

type noDataResponse struct {
	Status     string `json:"status"`
	UserID     string `json:"user_id"`
	PeriodDays int    `json:"period_days"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.svc.Sessions.Create(r.Context(), sessions.CreateInput{
		UserID:         domain.UserID(req.UserID),
		AssessmentType: domain.AssessmentType(strings.ToLower(strings.TrimSpace(req.AssessmentType))),
		FirstName:      req.FirstName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	superseded := make([]string, 0, len(out.Superseded))
	for _, id := range out.Superseded {
		superseded = append(superseded, string(id))
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session:    toSessionResponse(out.Session),
		Superseded: superseded,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Get(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Activate(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.svc.Sessions.AttachCapture(r.Context(), sessionID(r), domain.CaptureFragment{
		Turns:  req.Turns,
		Visual: req.Visual,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// handleFinalize has no capture handle: over HTTP the client pushes its last
// fragment through /capture before finalizing.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Finalizer.Finalize(r.Context(), sessionID(r), nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{
		Session:  toSessionResponse(res.Session),
		Fallback: string(res.Report.Fallback),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	// The body is optional.
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.svc.Sessions.Cancel(r.Context(), sessionID(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "days must be an integer")
			return
		}
		days = n
	}

	bundle, err := s.svc.Reports.Generate(r.Context(), domain.UserID(userID), days)
	if errors.Is(err, domain.ErrEmptyRange) {
		writeJSON(w, http.StatusOK, noDataResponse{Status: "no_data", UserID: userID, PeriodDays: days})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	kind := domain.AssessmentType(strings.ToLower(strings.TrimSpace(q.Get("type"))))
	summary, err := s.svc.Trends.GetUserTrend(r.Context(), domain.UserID(r.PathValue("id")), kind, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ─────────────────────────────────────────────
// Session Helpers
// ─────────────────────────────────────────────

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(r.PathValue("id"))
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:             string(s.ID),
		UserID:         string(s.UserID),
		AssessmentType: string(s.AssessmentType),
		FirstName:      s.FirstName,
		Status:         string(s.Status),
		CancelReason:   s.CancelReason,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ActivatedAt:    s.ActivatedAt,
		CompletedAt:    s.CompletedAt,
		CancelledAt:    s.CancelledAt,
		TextData:       s.TextData,
		VisualData:     s.VisualData,
		Analysis:       s.Analysis,
		FinalScore:     s.FinalScore,
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid_state", "detail": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict"})
	default:
		internalError(w, r, err)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

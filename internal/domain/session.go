package domain

import "time"

// Status is the lifecycle state of a check-in session.
//
//	pending -> active -> completed
//	   \          \----> cancelled
//	    \----------------^
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const (
	CancelSuperseded    = "superseded"
	CancelAbandoned     = "abandoned"
	CancelCaptureFailed = "capture_failed"
	CancelUserRequest   = "user_request"
)

// Turn is one utterance in the check-in conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TextData is the transcript captured while the session is active.
type TextData struct {
	Turns            []Turn   `json:"turns"`
	Transcripts      []string `json:"transcripts,omitempty"`
	FullConversation string   `json:"full_conversation,omitempty"`
}

// VisualData is the capture device summary. The core never interprets it.
type VisualData struct {
	CapturedAt time.Time          `json:"captured_at"`
	FrameCount int                `json:"frame_count"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// CaptureFragment is what the capture layer pushes into an active session.
// Either field may be empty.
type CaptureFragment struct {
	Turns  []Turn
	Visual *VisualData
}

// Session is one attempt at a baseline or check-in assessment.
type Session struct {
	ID             SessionID
	UserID         UserID
	AssessmentType AssessmentType
	FirstName      string

	Status       Status
	CancelReason string

	CreatedAt   Timestamp
	UpdatedAt   Timestamp
	ActivatedAt *Timestamp
	CompletedAt *Timestamp
	CancelledAt *Timestamp

	TextData   *TextData
	VisualData *VisualData

	// Analysis is set iff Status is StatusCompleted.
	Analysis   *AnalysisResult
	FinalScore *float64
}

// NewSession returns a pending session.
func NewSession(id SessionID, userID UserID, kind AssessmentType, now time.Time) *Session {
	return &Session{
		ID:             id,
		UserID:         userID,
		AssessmentType: kind,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Session) refuse(op string) error {
	return &TransitionError{SessionID: s.ID, Op: op, Status: s.Status}
}

// Activate moves pending -> active. Activating an active session is a no-op.
func (s *Session) Activate(now time.Time) error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusPending:
		s.Status = StatusActive
		s.ActivatedAt = &now
		s.UpdatedAt = now
		return nil
	default:
		return s.refuse("activate")
	}
}

// ApplyCapture lets merge update the captured payload. Only legal while active.
func (s *Session) ApplyCapture(now time.Time, merge func(*Session)) error {
	if s.Status != StatusActive {
		return s.refuse("attach capture")
	}
	merge(s)
	s.UpdatedAt = now
	return nil
}

// Complete moves active -> completed and attaches the validated analysis.
// It is deliberately not idempotent so a session is never counted twice.
func (s *Session) Complete(analysis AnalysisResult, finalScore float64, now time.Time) error {
	if s.Status != StatusActive {
		return s.refuse("complete")
	}
	if err := analysis.Check(); err != nil {
		return err
	}
	if finalScore < TextScoreMin || finalScore > TextScoreMax {
		return ErrInvalidInput
	}
	a := analysis.Clone()
	s.Status = StatusCompleted
	s.Analysis = &a
	s.FinalScore = &finalScore
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel moves pending or active -> cancelled. Cancelling twice is a no-op.
func (s *Session) Cancel(reason string, now time.Time) error {
	switch s.Status {
	case StatusCancelled:
		return nil
	case StatusPending, StatusActive:
		if reason == "" {
			reason = CancelUserRequest
		}
		s.Status = StatusCancelled
		s.CancelReason = reason
		s.CancelledAt = &now
		s.UpdatedAt = now
		return nil
	default:
		return s.refuse("cancel")
	}
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.ActivatedAt = cloneTime(s.ActivatedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	if s.TextData != nil {
		td := *s.TextData
		td.Turns = append([]Turn(nil), s.TextData.Turns...)
		td.Transcripts = append([]string(nil), s.TextData.Transcripts...)
		c.TextData = &td
	}
	if s.VisualData != nil {
		vd := *s.VisualData
		if s.VisualData.Metrics != nil {
			vd.Metrics = make(map[string]float64, len(s.VisualData.Metrics))
			for k, v := range s.VisualData.Metrics {
				vd.Metrics[k] = v
			}
		}
		c.VisualData = &vd
	}
	if s.Analysis != nil {
		a := s.Analysis.Clone()
		c.Analysis = &a
	}
	if s.FinalScore != nil {
		v := *s.FinalScore
		c.FinalScore = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

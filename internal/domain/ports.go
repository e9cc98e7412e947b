package domain

import (
	"context"
	"time"
)

// SessionStore defines session persistence. Each method is a single atomic
// operation; no caller writes session fields except through UpdateSession.
type SessionStore interface {
	// CreateSuperseding cancels every pending session of session.UserID with
	// reason CancelSuperseded and inserts session, atomically per user.
	CreateSuperseding(ctx context.Context, session *Session, now time.Time) ([]SessionID, error)
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// UpdateSession is an atomic read-modify-write. Nothing is written when fn
	// returns an error.
	UpdateSession(ctx context.Context, id SessionID, fn func(*Session) error) (*Session, error)
	// ListCompletedSessions returns completed sessions created at or after
	// since, newest first. limit <= 0 returns all.
	ListCompletedSessions(ctx context.Context, userID UserID, since time.Time, limit int) ([]*Session, error)
}

// TrendStore persists the score series fed by completed sessions.
type TrendStore interface {
	AppendTrendPoint(ctx context.Context, p TrendPoint) error
	// ListTrendPoints returns the newest limit points, oldest first.
	ListTrendPoints(ctx context.Context, userID UserID, kind AssessmentType, limit int) ([]TrendPoint, error)
}

// Analyzer is the external language-model collaborator.
type Analyzer interface {
	AnalyzeTranscript(ctx context.Context, transcript string, actx AnalysisContext) (RawAnalysis, error)
}

// Narrator turns a report bundle into prose.
type Narrator interface {
	NarrateReport(ctx context.Context, bundle *ReportBundle) (string, error)
}

// CaptureHandle is the per-session handle on the capture device or widget.
type CaptureHandle interface {
	Stop(ctx context.Context) (*VisualData, error)
}

// CompletionNotifier receives completed sessions after they are durable.
type CompletionNotifier interface {
	SessionCompleted(ctx context.Context, session *Session) error
}

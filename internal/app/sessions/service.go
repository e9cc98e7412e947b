// Package sessions owns the check-in lifecycle. Every operation is one atomic
// store call; the transition rules themselves live on domain.Session.
package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/capture"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

type Service struct {
	store domain.SessionStore
	now   func() time.Time
	newID func() domain.SessionID
}

func NewService(store domain.SessionStore) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() domain.SessionID { return domain.SessionID(uuid.NewString()) },
	}
}

// WithClock replaces the time source; used by tests and the CLI.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	UserID         domain.UserID
	AssessmentType domain.AssessmentType
	FirstName      string
}

type CreateOutput struct {
	Session    *domain.Session
	Superseded []domain.SessionID
}

// Create cancels the user's pending sessions and inserts a new pending one.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(string(in.UserID)) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if in.AssessmentType == "" {
		in.AssessmentType = domain.AssessmentCheckIn
	}
	if !in.AssessmentType.Valid() {
		return nil, fmt.Errorf("%w: assessment type %q", domain.ErrInvalidInput, in.AssessmentType)
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"assessment_type", in.AssessmentType,
	)

	now := s.now()
	session := domain.NewSession(s.newID(), in.UserID, in.AssessmentType, now)
	session.FirstName = strings.TrimSpace(in.FirstName)

	superseded, err := s.store.CreateSuperseding(ctx, session, now)
	if err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	log.Info("session created", "session_id", session.ID, "superseded", len(superseded))
	return &CreateOutput{Session: session, Superseded: superseded}, nil
}

func (s *Service) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.store.GetSession(ctx, id)
}

// Activate moves pending -> active; already active is fine.
func (s *Service) Activate(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	now := s.now()
	return s.update(ctx, id, "activate", func(sess *domain.Session) error {
		return sess.Activate(now)
	})
}

// AttachCapture merges a fragment into an active session.
func (s *Service) AttachCapture(ctx context.Context, id domain.SessionID, frag domain.CaptureFragment) (*domain.Session, error) {
	frag.Turns = capture.NormalizeRoles(frag.Turns)
	now := s.now()
	return s.update(ctx, id, "attach_capture", func(sess *domain.Session) error {
		return sess.ApplyCapture(now, capture.Merge(frag))
	})
}

// Complete attaches a validated analysis and closes the session. A second
// call fails with ErrInvalidState.
func (s *Service) Complete(ctx context.Context, id domain.SessionID, analysis domain.AnalysisResult, finalScore float64) (*domain.Session, error) {
	now := s.now()
	return s.update(ctx, id, "complete", func(sess *domain.Session) error {
		return sess.Complete(analysis, finalScore, now)
	})
}

// Cancel is idempotent on cancelled sessions and refuses completed ones.
func (s *Service) Cancel(ctx context.Context, id domain.SessionID, reason string) (*domain.Session, error) {
	now := s.now()
	return s.update(ctx, id, "cancel", func(sess *domain.Session) error {
		return sess.Cancel(strings.TrimSpace(reason), now)
	})
}

func (s *Service) update(ctx context.Context, id domain.SessionID, op string, fn func(*domain.Session) error) (*domain.Session, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", id, "op", op)

	sess, err := s.store.UpdateSession(ctx, id, fn)
	if err != nil {
		log.Warn("session update refused", "error", err)
		return nil, err
	}

	log.Info("session updated", "status", sess.Status)
	return sess, nil
}

// LatestCompleted returns the user's most recent completed session, or nil.
func (s *Service) LatestCompleted(ctx context.Context, userID domain.UserID) (*domain.Session, error) {
	list, err := s.store.ListCompletedSessions(ctx, userID, time.Time{}, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// Package trend keeps per-user score series, one per assessment type.
package trend

import (
	"context"
	"fmt"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

const DefaultLimit = 30

// Recorder feeds completed sessions into the trend store. It implements
// domain.CompletionNotifier.
type Recorder struct {
	store domain.TrendStore
}

func NewRecorder(store domain.TrendStore) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) SessionCompleted(ctx context.Context, s *domain.Session) error {
	if s == nil || s.Status != domain.StatusCompleted || s.Analysis == nil || s.FinalScore == nil {
		return fmt.Errorf("%w: trend point needs a completed session", domain.ErrInvalidInput)
	}

	recordedAt := s.UpdatedAt
	if s.CompletedAt != nil {
		recordedAt = *s.CompletedAt
	}

	p := domain.TrendPoint{
		SessionID:      s.ID,
		UserID:         s.UserID,
		AssessmentType: s.AssessmentType,
		Score:          *s.FinalScore,
		MoodScore:      s.Analysis.MoodScore,
		RiskLevel:      s.Analysis.RiskLevel,
		RecordedAt:     recordedAt,
	}
	if err := r.store.AppendTrendPoint(ctx, p); err != nil {
		return fmt.Errorf("append trend point: %w", err)
	}

	observability.LoggerFromContext(ctx).Info("trend point recorded",
		"session_id", s.ID,
		"user_id", s.UserID,
		"assessment_type", s.AssessmentType,
	)
	return nil
}

// Service holds the logic of reading trend series.
type Service struct {
	store domain.TrendStore
}

func NewService(store domain.TrendStore) *Service {
	return &Service{store: store}
}

// Summary is a series plus its latest value and change over the window.
type Summary struct {
	UserID         domain.UserID         `json:"user_id"`
	AssessmentType domain.AssessmentType `json:"assessment_type"`
	Points         []domain.TrendPoint   `json:"points"`
	Latest         *float64              `json:"latest"`
	Change         *float64              `json:"change"`
	Since          *time.Time            `json:"since,omitempty"`
}

// GetUserTrend returns the last `limit` points of one series, oldest first.
// If limit <= 0, a reasonable default value is used.
func (s *Service) GetUserTrend(ctx context.Context, userID domain.UserID, kind domain.AssessmentType, limit int) (*Summary, error) {
	if kind == "" {
		kind = domain.AssessmentCheckIn
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: assessment type %q", domain.ErrInvalidInput, kind)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	points, err := s.store.ListTrendPoints(ctx, userID, kind, limit)
	if err != nil {
		return nil, err
	}

	out := &Summary{UserID: userID, AssessmentType: kind, Points: points}
	if n := len(points); n > 0 {
		latest := points[n-1].Score
		change := latest - points[0].Score
		since := points[0].RecordedAt
		out.Latest = &latest
		out.Change = &change
		out.Since = &since
	}
	if out.Points == nil {
		out.Points = []domain.TrendPoint{}
	}
	return out, nil
}

package sqlite

import (
	"context"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

type trendRow struct {
	SessionID      string    `db:"session_id"`
	UserID         string    `db:"user_id"`
	AssessmentType string    `db:"assessment_type"`
	Score          float64   `db:"score"`
	MoodScore      int       `db:"mood_score"`
	RiskLevel      string    `db:"risk_level"`
	RecordedAt     time.Time `db:"recorded_at"`
}

// AppendTrendPoint upserts by session id.
func (s *Store) AppendTrendPoint(ctx context.Context, p domain.TrendPoint) error {
	query := `
		INSERT INTO checkin_trend_points (
			session_id, user_id, assessment_type, score, mood_score, risk_level, recorded_at
		) VALUES (:session_id, :user_id, :assessment_type, :score, :mood_score, :risk_level, :recorded_at)
		ON CONFLICT(session_id) DO UPDATE SET
			score = excluded.score,
			mood_score = excluded.mood_score,
			risk_level = excluded.risk_level,
			recorded_at = excluded.recorded_at
	`
	_, err := s.db.NamedExecContext(ctx, query, trendRow{
		SessionID:      string(p.SessionID),
		UserID:         string(p.UserID),
		AssessmentType: string(p.AssessmentType),
		Score:          p.Score,
		MoodScore:      p.MoodScore,
		RiskLevel:      string(p.RiskLevel),
		RecordedAt:     p.RecordedAt.UTC(),
	})
	if err != nil {
		return mapErr("AppendTrendPoint", err)
	}
	return nil
}

func (s *Store) ListTrendPoints(ctx context.Context, userID domain.UserID, kind domain.AssessmentType, limit int) ([]domain.TrendPoint, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []trendRow
	query := `
		SELECT session_id, user_id, assessment_type, score, mood_score, risk_level, recorded_at
		FROM checkin_trend_points
		WHERE user_id = ? AND assessment_type = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`
	if err := s.db.SelectContext(ctx, &rows, query, string(userID), string(kind), limit); err != nil {
		return nil, mapErr("ListTrendPoints", err)
	}

	// Newest first from the query; callers want oldest first.
	out := make([]domain.TrendPoint, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, domain.TrendPoint{
			SessionID:      domain.SessionID(r.SessionID),
			UserID:         domain.UserID(r.UserID),
			AssessmentType: domain.AssessmentType(r.AssessmentType),
			Score:          r.Score,
			MoodScore:      r.MoodScore,
			RiskLevel:      domain.RiskLevel(r.RiskLevel),
			RecordedAt:     r.RecordedAt.UTC(),
		})
	}
	return out, nil
}

package domain

import "time"

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScorePoint is one completed session on a report's score chart.
type ScorePoint struct {
	SessionID SessionID `json:"session_id"`
	Date      time.Time `json:"date"`
	Score     float64   `json:"score"`
}

// ReportBundle is a derived rollup of a user's completed sessions over a
// window. It is never persisted.
type ReportBundle struct {
	UserID       UserID    `json:"user_id"`
	PeriodDays   int       `json:"period_days"`
	DateRange    DateRange `json:"date_range"`
	CheckInCount int       `json:"check_in_count"`

	// nil when no session in range carried a sample.
	AverageScore *float64 `json:"average_score"`
	AverageMood  *float64 `json:"average_mood"`

	ThemeFrequency     map[string]int    `json:"theme_frequency"`
	TopPositiveDrivers []string          `json:"top_positive_drivers"`
	TopConcernDrivers  []string          `json:"top_concern_drivers"`
	Summaries          []string          `json:"summaries"`
	RiskLevelCounts    map[RiskLevel]int `json:"risk_level_counts"`
	HighestRisk        RiskLevel         `json:"highest_risk"`
	ScoreSeries        []ScorePoint      `json:"score_series"`

	GeneratedAt time.Time `json:"generated_at"`
	Narrative   string    `json:"narrative,omitempty"`
}

// TrendPoint is one completed session's contribution to a user's score trend.
type TrendPoint struct {
	SessionID      SessionID      `json:"session_id"`
	UserID         UserID         `json:"user_id"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Score          float64        `json:"score"`
	MoodScore      int            `json:"mood_score"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

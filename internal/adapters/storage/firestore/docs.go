package firestore

import (
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type turnDoc struct {
	Role      string    `firestore:"role"`
	Text      string    `firestore:"text"`
	Timestamp time.Time `firestore:"timestamp"`
}

type textDataDoc struct {
	Turns            []turnDoc `firestore:"turns"`
	Transcripts      []string  `firestore:"transcripts"`
	FullConversation string    `firestore:"full_conversation"`
}

type visualDataDoc struct {
	CapturedAt time.Time          `firestore:"captured_at"`
	FrameCount int                `firestore:"frame_count"`
	Metrics    map[string]float64 `firestore:"metrics"`
	Notes      string             `firestore:"notes"`
}

type analysisDoc struct {
	Version             string   `firestore:"version"`
	Themes              []string `firestore:"themes"`
	Keywords            []string `firestore:"keywords"`
	RiskLevel           string   `firestore:"risk_level"`
	DirectionOfChange   string   `firestore:"direction_of_change"`
	MoodScore           int      `firestore:"mood_score"`
	TextScore           float64  `firestore:"text_score"`
	Uncertainty         float64  `firestore:"uncertainty"`
	DriversPositive     []string `firestore:"drivers_positive"`
	DriversNegative     []string `firestore:"drivers_negative"`
	ConversationSummary string   `firestore:"conversation_summary"`
	NotableQuotes       []string `firestore:"notable_quotes"`
}

type sessionDoc struct {
	UserID         string `firestore:"user_id"`
	AssessmentType string `firestore:"assessment_type"`
	FirstName      string `firestore:"first_name"`
	Status         string `firestore:"status"`
	CancelReason   string `firestore:"cancel_reason"`

	CreatedAt   time.Time  `firestore:"created_at"`
	UpdatedAt   time.Time  `firestore:"updated_at"`
	ActivatedAt *time.Time `firestore:"activated_at"`
	CompletedAt *time.Time `firestore:"completed_at"`
	CancelledAt *time.Time `firestore:"cancelled_at"`

	TextData   *textDataDoc   `firestore:"text_data"`
	VisualData *visualDataDoc `firestore:"visual_data"`
	Analysis   *analysisDoc   `firestore:"analysis"`
	FinalScore *float64       `firestore:"final_score"`
}

type trendPointDoc struct {
	UserID         string    `firestore:"user_id"`
	AssessmentType string    `firestore:"assessment_type"`
	Score          float64   `firestore:"score"`
	MoodScore      int       `firestore:"mood_score"`
	RiskLevel      string    `firestore:"risk_level"`
	RecordedAt     time.Time `firestore:"recorded_at"`
}

// ─────────────────────────────────────────
// Conversions
// ─────────────────────────────────────────

func toSessionDoc(s *domain.Session) sessionDoc {
	doc := sessionDoc{
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
		FinalScore:     s.FinalScore,
	}

	if td := s.TextData; td != nil {
		d := &textDataDoc{
			Transcripts:      td.Transcripts,
			FullConversation: td.FullConversation,
		}
		for _, t := range td.Turns {
			d.Turns = append(d.Turns, turnDoc{Role: string(t.Role), Text: t.Text, Timestamp: t.Timestamp})
		}
		doc.TextData = d
	}

	if vd := s.VisualData; vd != nil {
		doc.VisualData = &visualDataDoc{
			CapturedAt: vd.CapturedAt,
			FrameCount: vd.FrameCount,
			Metrics:    vd.Metrics,
			Notes:      vd.Notes,
		}
	}

	if a := s.Analysis; a != nil {
		doc.Analysis = &analysisDoc{
			Version:             a.Version,
			Themes:              a.Themes,
			Keywords:            a.Keywords,
			RiskLevel:           string(a.RiskLevel),
			DirectionOfChange:   string(a.DirectionOfChange),
			MoodScore:           a.MoodScore,
			TextScore:           a.TextScore,
			Uncertainty:         a.Uncertainty,
			DriversPositive:     a.DriversPositive,
			DriversNegative:     a.DriversNegative,
			ConversationSummary: a.ConversationSummary,
			NotableQuotes:       a.NotableQuotes,
		}
	}
	return doc
}

func fromSessionDoc(id string, doc sessionDoc) *domain.Session {
	s := &domain.Session{
		ID:             domain.SessionID(id),
		UserID:         domain.UserID(doc.UserID),
		AssessmentType: domain.AssessmentType(doc.AssessmentType),
		FirstName:      doc.FirstName,
		Status:         domain.Status(doc.Status),
		CancelReason:   doc.CancelReason,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		ActivatedAt:    doc.ActivatedAt,
		CompletedAt:    doc.CompletedAt,
		CancelledAt:    doc.CancelledAt,
		FinalScore:     doc.FinalScore,
	}

	if td := doc.TextData; td != nil {
		out := &domain.TextData{
			Transcripts:      td.Transcripts,
			FullConversation: td.FullConversation,
		}
		for _, t := range td.Turns {
			out.Turns = append(out.Turns, domain.Turn{Role: domain.Role(t.Role), Text: t.Text, Timestamp: t.Timestamp})
		}
		s.TextData = out
	}

	if vd := doc.VisualData; vd != nil {
		s.VisualData = &domain.VisualData{
			CapturedAt: vd.CapturedAt,
			FrameCount: vd.FrameCount,
			Metrics:    vd.Metrics,
			Notes:      vd.Notes,
		}
	}

	if a := doc.Analysis; a != nil {
		res := &domain.AnalysisResult{
			Version:             a.Version,
			Themes:              a.Themes,
			Keywords:            a.Keywords,
			RiskLevel:           domain.RiskLevel(a.RiskLevel),
			DirectionOfChange:   domain.Direction(a.DirectionOfChange),
			MoodScore:           a.MoodScore,
			TextScore:           a.TextScore,
			Uncertainty:         a.Uncertainty,
			DriversPositive:     a.DriversPositive,
			DriversNegative:     a.DriversNegative,
			ConversationSummary: a.ConversationSummary,
			NotableQuotes:       a.NotableQuotes,
		}
		res.EnsureSequences()
		s.Analysis = res
	}
	return s
}

func toTrendPointDoc(p domain.TrendPoint) trendPointDoc {
	return trendPointDoc{
		UserID:         string(p.UserID),
		AssessmentType: string(p.AssessmentType),
		Score:          p.Score,
		MoodScore:      p.MoodScore,
		RiskLevel:      string(p.RiskLevel),
		RecordedAt:     p.RecordedAt,
	}
}

func fromTrendPointDoc(id string, doc trendPointDoc) domain.TrendPoint {
	return domain.TrendPoint{
		SessionID:      domain.SessionID(id),
		UserID:         domain.UserID(doc.UserID),
		AssessmentType: domain.AssessmentType(doc.AssessmentType),
		Score:          doc.Score,
		MoodScore:      doc.MoodScore,
		RiskLevel:      domain.RiskLevel(doc.RiskLevel),
		RecordedAt:     doc.RecordedAt,
	}
}

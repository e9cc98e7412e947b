package domain

import (
	"fmt"
	"math"
)

// AnalysisSchemaVersion tags every validated result.
const AnalysisSchemaVersion = "checkin-analysis/v1"

const (
	MoodScoreMin   = 1
	MoodScoreMax   = 10
	TextScoreMin   = 0.0
	TextScoreMax   = 100.0
	UncertaintyMin = 0.0
	UncertaintyMax = 1.0
)

type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskMild     RiskLevel = "mild"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Rank orders risk levels from none (0) to high (3). Unknown values rank -1.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskNone:
		return 0
	case RiskMild:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	}
	return -1
}

type Direction string

const (
	DirectionBetter  Direction = "better"
	DirectionWorse   Direction = "worse"
	DirectionSame    Direction = "same"
	DirectionUnclear Direction = "unclear"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionBetter, DirectionWorse, DirectionSame, DirectionUnclear:
		return true
	}
	return false
}

// RawAnalysis is the untyped, unverified model output.
type RawAnalysis map[string]any

// AnalysisResult is the validated signal for one session. Every field is
// populated and within bounds; nothing downstream re-checks them.
type AnalysisResult struct {
	Version             string    `json:"version"`
	Themes              []string  `json:"themes"`
	Keywords            []string  `json:"keywords"`
	RiskLevel           RiskLevel `json:"risk_level"`
	DirectionOfChange   Direction `json:"direction_of_change"`
	MoodScore           int       `json:"mood_score"`
	TextScore           float64   `json:"text_score"`
	Uncertainty         float64   `json:"uncertainty"`
	DriversPositive     []string  `json:"drivers_positive"`
	DriversNegative     []string  `json:"drivers_negative"`
	ConversationSummary string    `json:"conversation_summary"`
	NotableQuotes       []string  `json:"notable_quotes"`
}

// Check verifies the validated-result postcondition.
func (a AnalysisResult) Check() error {
	switch {
	case a.Version == "":
		return fmt.Errorf("%w: analysis version empty", ErrInvalidInput)
	case a.RiskLevel.Rank() < 0:
		return fmt.Errorf("%w: risk level %q", ErrInvalidInput, a.RiskLevel)
	case !a.DirectionOfChange.Valid():
		return fmt.Errorf("%w: direction %q", ErrInvalidInput, a.DirectionOfChange)
	case a.MoodScore < MoodScoreMin || a.MoodScore > MoodScoreMax:
		return fmt.Errorf("%w: mood score %d", ErrInvalidInput, a.MoodScore)
	case !inRange(a.TextScore, TextScoreMin, TextScoreMax):
		return fmt.Errorf("%w: text score %v", ErrInvalidInput, a.TextScore)
	case !inRange(a.Uncertainty, UncertaintyMin, UncertaintyMax):
		return fmt.Errorf("%w: uncertainty %v", ErrInvalidInput, a.Uncertainty)
	case a.ConversationSummary == "":
		return fmt.Errorf("%w: conversation summary empty", ErrInvalidInput)
	case a.Themes == nil || a.Keywords == nil || a.DriversPositive == nil ||
		a.DriversNegative == nil || a.NotableQuotes == nil:
		return fmt.Errorf("%w: nil sequence in analysis", ErrInvalidInput)
	}
	return nil
}

func (a AnalysisResult) Clone() AnalysisResult {
	c := a
	c.Themes = cloneStrings(a.Themes)
	c.Keywords = cloneStrings(a.Keywords)
	c.DriversPositive = cloneStrings(a.DriversPositive)
	c.DriversNegative = cloneStrings(a.DriversNegative)
	c.NotableQuotes = cloneStrings(a.NotableQuotes)
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// AnalysisContext is what the analyzer receives besides the transcript.
type AnalysisContext struct {
	CheckInID        SessionID
	AssessmentType   AssessmentType
	StudentFirstName string
	PreviousThemes   []string
	PreviousScore    *float64
}

// EnsureSequences replaces nil sequences with empty ones. Storage adapters
// call it after decoding, since some backends drop empty arrays.
func (a *AnalysisResult) EnsureSequences() {
	for _, p := range []*[]string{&a.Themes, &a.Keywords, &a.DriversPositive, &a.DriversNegative, &a.NotableQuotes} {
		if *p == nil {
			*p = []string{}
		}
	}
}

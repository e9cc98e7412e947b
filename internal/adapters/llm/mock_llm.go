package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

// MockLLM is a deterministic stand-in for local runs and tests. It scores the
// student's lines with a small word list.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

var (
	positiveWords = map[string]string{
		"good": "", "great": "", "better": "", "calm": "", "happy": "",
		"friends": "friends", "sleep": "sleep", "gym": "exercise", "run": "exercise",
	}
	negativeWords = map[string]string{
		"tired": "sleep", "stressed": "stress", "stress": "stress", "anxious": "anxiety",
		"lonely": "loneliness", "exams": "exams", "deadline": "deadlines", "deadlines": "deadlines",
		"sad": "", "bad": "", "worse": "",
	}
	riskWords = []string{"hopeless", "hurt myself", "end it", "suicide"}
)

func (m *MockLLM) AnalyzeTranscript(_ context.Context, transcript string, actx domain.AnalysisContext) (domain.RawAnalysis, error) {
	var userLines []string
	for _, line := range strings.Split(transcript, "\n") {
		if text, ok := strings.CutPrefix(line, "User: "); ok {
			userLines = append(userLines, text)
		}
	}
	text := strings.ToLower(strings.Join(userLines, " "))

	pos, neg := 0, 0
	themes := map[string]bool{}
	var drivers, concerns []string
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if theme, ok := positiveWords[w]; ok {
			pos++
			if theme != "" {
				themes[theme] = true
				drivers = append(drivers, theme)
			}
		}
		if theme, ok := negativeWords[w]; ok {
			neg++
			if theme != "" {
				themes[theme] = true
				concerns = append(concerns, theme)
			}
		}
	}

	score := 50 + 10*pos - 10*neg
	score = max(0, min(100, score))

	risk := "none"
	switch {
	case containsAny(text, riskWords):
		risk = "high"
	case neg >= 3:
		risk = "moderate"
	case neg > 0:
		risk = "mild"
	}

	direction := "unclear"
	if actx.PreviousScore != nil {
		switch prev := *actx.PreviousScore; {
		case float64(score) > prev+5:
			direction = "better"
		case float64(score) < prev-5:
			direction = "worse"
		default:
			direction = "same"
		}
	}

	themeList := make([]any, 0, len(themes))
	for _, t := range sortedKeys(themes) {
		themeList = append(themeList, t)
	}

	return domain.RawAnalysis{
		"version":              domain.AnalysisSchemaVersion,
		"themes":               themeList,
		"keywords":             toAny(sortedKeys(themes)),
		"risk_level":           risk,
		"direction_of_change":  direction,
		"mood_score":           float64(1 + score*9/100),
		"text_score":           float64(score),
		"uncertainty":          0.4,
		"drivers_positive":     toAny(unique(drivers)),
		"drivers_negative":     toAny(unique(concerns)),
		"conversation_summary": fmt.Sprintf("The student shared %d message(s) during the %s.", len(userLines), actx.AssessmentType),
		"notable_quotes":       []any{},
	}, nil
}

func (m *MockLLM) NarrateReport(_ context.Context, bundle *domain.ReportBundle) (string, error) {
	score := "no score"
	if bundle.AverageScore != nil {
		score = fmt.Sprintf("an average score of %.0f", *bundle.AverageScore)
	}
	return fmt.Sprintf("Over the last %d days you checked in %d time(s) with %s.",
		bundle.PeriodDays, bundle.CheckInCount, score), nil
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unique(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

package llm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/llm"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

func TestMockAnalysisValidatesCleanly(t *testing.T) {
	transcript := "Agent: How are you?\nUser: Pretty stressed about exams and tired, but my friends help."
	raw, err := llm.NewMockLLM().AnalyzeTranscript(context.Background(), transcript, domain.AnalysisContext{AssessmentType: domain.AssessmentCheckIn})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	res, rep := analysis.Validate(raw)
	if rep.Degraded() {
		t.Fatalf("mock output should need no defaults: %+v", rep)
	}
	if res.RiskLevel != domain.RiskModerate || res.TextScore != 30 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.DriversPositive) != 1 || res.DriversPositive[0] != "friends" {
		t.Fatalf("unexpected drivers %v", res.DriversPositive)
	}
}

func TestMockIgnoresAgentLines(t *testing.T) {
	transcript := "Agent: Exams and deadlines can be stressful.\nUser: I'm fine."
	raw, _ := llm.NewMockLLM().AnalyzeTranscript(context.Background(), transcript, domain.AnalysisContext{})
	res, _ := analysis.Validate(raw)
	if res.TextScore != 50 || res.RiskLevel != domain.RiskNone {
		t.Fatalf("agent lines leaked into scoring: %+v", res)
	}
}

func TestBuildAnalysisPromptIncludesContext(t *testing.T) {
	prev := 64.0
	p := llm.BuildAnalysisPrompt("User: hello there", domain.AnalysisContext{
		AssessmentType:   domain.AssessmentCheckIn,
		StudentFirstName: "Sam",
		PreviousThemes:   []string{"sleep", "exams"},
		PreviousScore:    &prev,
	})
	for _, want := range []string{"Sam", "Previous check-in score: 64", "sleep, exams", "User: hello there"} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.User)
		}
	}
	if !strings.Contains(p.System, `"text_score"`) {
		t.Fatalf("system prompt should list the output keys")
	}
}

func TestBuildNarrativePromptOrdersThemes(t *testing.T) {
	avg := 70.0
	p := llm.BuildNarrativePrompt(&domain.ReportBundle{
		PeriodDays:     7,
		CheckInCount:   3,
		AverageScore:   &avg,
		ThemeFrequency: map[string]int{"sleep": 1, "exams": 2, "friends": 1},
		HighestRisk:    domain.RiskMild,
	})
	if !strings.Contains(p.User, "Frequent themes: exams, friends, sleep") {
		t.Fatalf("unexpected theme line:\n%s", p.User)
	}
}

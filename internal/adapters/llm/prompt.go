package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

const analysisSystemPrompt = `
You analyse short wellbeing check-in conversations between a university student and a supportive voice agent.

Your role:
- Read the whole conversation and describe how the student seems to be doing.
- You are NOT a clinician and you do NOT diagnose. Describe what was said, not what it might mean medically.
- Only use what the student actually said. Agent lines are context only.

Output:
Reply with ONE JSON object and nothing else. No prose, no code fences. Use exactly these keys:
- "version": the string "checkin-analysis/v1"
- "themes": list of short topic labels (for example "sleep", "exams", "friends")
- "keywords": list of notable single words the student used
- "risk_level": one of "none", "mild", "moderate", "high"
- "direction_of_change": one of "better", "worse", "same", "unclear" compared to the previous check-in
- "mood_score": integer from 1 (very low) to 10 (very good)
- "text_score": number from 0 to 100, overall wellbeing from the conversation
- "uncertainty": number from 0 to 1, how unsure you are about the scores
- "drivers_positive": list of things that are helping the student
- "drivers_negative": list of things that are weighing on the student
- "conversation_summary": two or three plain sentences addressed to nobody in particular
- "notable_quotes": list of short verbatim quotes from the student

Safety:
- Any mention of self-harm, suicide, or harming others is at least "moderate" risk; explicit intent is "high".
- If there is no previous check-in, use "unclear" for direction_of_change.
`

const narrativeSystemPrompt = `
You write short, warm wellbeing recaps for a university student based on aggregated check-in data.

Guidelines:
- Write 3 to 5 sentences in plain, everyday language.
- Mention the overall score trend and the most frequent themes.
- Name one thing that seems to help and one thing that weighs on them, if available.
- Do not diagnose and do not invent details that are not in the data.
- If the highest risk level is "moderate" or "high", gently suggest talking to someone they trust or to student support services.
`

// Prompt represents the system prompt + the content to send as "user".
type Prompt struct {
	System string
	User   string
}

// BuildAnalysisPrompt builds the prompt for one finished check-in.
func BuildAnalysisPrompt(transcript string, actx domain.AnalysisContext) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Assessment type: %s\n", actx.AssessmentType)
	if actx.StudentFirstName != "" {
		fmt.Fprintf(&b, "Student first name: %s\n", actx.StudentFirstName)
	}
	if actx.PreviousScore != nil {
		fmt.Fprintf(&b, "Previous check-in score: %.0f\n", *actx.PreviousScore)
	} else {
		b.WriteString("Previous check-in score: none\n")
	}
	if len(actx.PreviousThemes) > 0 {
		fmt.Fprintf(&b, "Previous themes: %s\n", strings.Join(actx.PreviousThemes, ", "))
	}

	b.WriteString("\nConversation:\n")
	b.WriteString(transcript)

	return Prompt{System: analysisSystemPrompt, User: b.String()}
}

// BuildNarrativePrompt renders a report bundle as plain facts for the model.
func BuildNarrativePrompt(bundle *domain.ReportBundle) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Period: last %d days\n", bundle.PeriodDays)
	fmt.Fprintf(&b, "Check-ins: %d\n", bundle.CheckInCount)
	if bundle.AverageScore != nil {
		fmt.Fprintf(&b, "Average score: %.0f / 100\n", *bundle.AverageScore)
	}
	if bundle.AverageMood != nil {
		fmt.Fprintf(&b, "Average mood: %.1f / 10\n", *bundle.AverageMood)
	}
	if len(bundle.ScoreSeries) > 1 {
		first := bundle.ScoreSeries[0].Score
		last := bundle.ScoreSeries[len(bundle.ScoreSeries)-1].Score
		fmt.Fprintf(&b, "Score moved from %.0f to %.0f\n", first, last)
	}
	if themes := topThemes(bundle.ThemeFrequency, 5); len(themes) > 0 {
		fmt.Fprintf(&b, "Frequent themes: %s\n", strings.Join(themes, ", "))
	}
	if len(bundle.TopPositiveDrivers) > 0 {
		fmt.Fprintf(&b, "Helping: %s\n", strings.Join(bundle.TopPositiveDrivers, ", "))
	}
	if len(bundle.TopConcernDrivers) > 0 {
		fmt.Fprintf(&b, "Weighing on them: %s\n", strings.Join(bundle.TopConcernDrivers, ", "))
	}
	fmt.Fprintf(&b, "Highest risk level: %s\n", bundle.HighestRisk)

	return Prompt{System: narrativeSystemPrompt, User: b.String()}
}

// topThemes returns the n most frequent themes, ties broken alphabetically.
func topThemes(freq map[string]int, n int) []string {
	themes := make([]string, 0, len(freq))
	for t := range freq {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool {
		if freq[themes[i]] != freq[themes[j]] {
			return freq[themes[i]] > freq[themes[j]]
		}
		return themes[i] < themes[j]
	})
	if len(themes) > n {
		themes = themes[:n]
	}
	return themes
}

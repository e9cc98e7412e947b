// Package analysis is the single boundary between untyped model output and
// the typed AnalysisResult that is stored and shown to users.
package analysis

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

const (
	// MinTranscriptChars is the shortest user transcript worth sending out.
	MinTranscriptChars = 10

	DefaultMoodScore   = 5
	DefaultTextScore   = 50.0
	DefaultUncertainty = 0.5

	// DefaultedScoreUncertainty is the floor applied when text_score had to
	// be defaulted.
	DefaultedScoreUncertainty = 0.6
	InsufficientUncertainty   = 0.9

	PlaceholderSummary  = "The check-in was recorded, but no summary could be produced."
	UnavailableSummary  = "Analysis was unavailable for this check-in; a neutral result was recorded."
	insufficientSummary = "Not enough was shared in this check-in to produce a detailed analysis."
)

// Keys expected in the raw model output.
const (
	KeyVersion             = "version"
	KeyThemes              = "themes"
	KeyKeywords            = "keywords"
	KeyRiskLevel           = "risk_level"
	KeyDirectionOfChange   = "direction_of_change"
	KeyMoodScore           = "mood_score"
	KeyTextScore           = "text_score"
	KeyUncertainty         = "uncertainty"
	KeyDriversPositive     = "drivers_positive"
	KeyDriversNegative     = "drivers_negative"
	KeyConversationSummary = "conversation_summary"
	KeyNotableQuotes       = "notable_quotes"
)

// Fallback says which canned result, if any, replaced field validation.
type Fallback string

const (
	FallbackNone         Fallback = ""
	FallbackInsufficient Fallback = "insufficient_information"
	FallbackUnavailable  Fallback = "analysis_unavailable"
)

// Report is observability metadata about one validation. It is never shown
// to the user.
type Report struct {
	Fallback        Fallback
	DefaultsApplied []string
	Cause           error
}

func (r Report) Degraded() bool {
	return r.Fallback != FallbackNone || len(r.DefaultsApplied) > 0
}

// Validate turns any raw model output into a fully populated, in-bounds
// result. It never fails.
func Validate(raw domain.RawAnalysis) (domain.AnalysisResult, Report) {
	var rep Report
	defaulted := func(key string) { rep.DefaultsApplied = append(rep.DefaultsApplied, key) }

	res := domain.AnalysisResult{}

	if v, ok := nonEmptyString(raw[KeyVersion]); ok {
		res.Version = v
	} else {
		res.Version = domain.AnalysisSchemaVersion
		defaulted(KeyVersion)
	}

	res.Themes = stringSeq(raw[KeyThemes], KeyThemes, defaulted)
	res.Keywords = stringSeq(raw[KeyKeywords], KeyKeywords, defaulted)
	res.DriversPositive = stringSeq(raw[KeyDriversPositive], KeyDriversPositive, defaulted)
	res.DriversNegative = stringSeq(raw[KeyDriversNegative], KeyDriversNegative, defaulted)
	res.NotableQuotes = stringSeq(raw[KeyNotableQuotes], KeyNotableQuotes, defaulted)

	res.RiskLevel = domain.RiskNone
	if s, ok := raw[KeyRiskLevel].(string); ok && domain.RiskLevel(s).Rank() >= 0 {
		res.RiskLevel = domain.RiskLevel(s)
	} else {
		defaulted(KeyRiskLevel)
	}

	res.DirectionOfChange = domain.DirectionUnclear
	if s, ok := raw[KeyDirectionOfChange].(string); ok && domain.Direction(s).Valid() {
		res.DirectionOfChange = domain.Direction(s)
	} else {
		defaulted(KeyDirectionOfChange)
	}

	res.MoodScore = DefaultMoodScore
	if n, ok := number(raw[KeyMoodScore]); ok && n >= domain.MoodScoreMin && n <= domain.MoodScoreMax {
		res.MoodScore = int(math.Round(n))
	} else {
		defaulted(KeyMoodScore)
	}

	res.Uncertainty = DefaultUncertainty
	if n, ok := number(raw[KeyUncertainty]); ok && n >= domain.UncertaintyMin && n <= domain.UncertaintyMax {
		res.Uncertainty = n
	} else {
		defaulted(KeyUncertainty)
	}

	res.TextScore = DefaultTextScore
	if n, ok := number(raw[KeyTextScore]); ok && n >= domain.TextScoreMin && n <= domain.TextScoreMax {
		res.TextScore = n
	} else {
		defaulted(KeyTextScore)
		// Defaulting the primary score must lower confidence.
		res.Uncertainty = math.Max(res.Uncertainty, DefaultedScoreUncertainty)
	}

	if s, ok := nonEmptyString(raw[KeyConversationSummary]); ok {
		res.ConversationSummary = s
	} else {
		res.ConversationSummary = PlaceholderSummary
		defaulted(KeyConversationSummary)
	}

	return res, rep
}

// Insufficient is the short-circuit result for transcripts too sparse to
// analyze. contextSummary, when set, is folded into the summary sentence.
func Insufficient(contextSummary string) domain.AnalysisResult {
	res := neutral(insufficientSummary)
	res.Uncertainty = InsufficientUncertainty
	if c := strings.TrimSpace(contextSummary); c != "" {
		res.ConversationSummary = strings.TrimSuffix(insufficientSummary, ".") + " (" + c + ")."
	}
	return res
}

// Unavailable is the result recorded when the model call failed.
func Unavailable() domain.AnalysisResult {
	res := neutral(UnavailableSummary)
	res.Uncertainty = InsufficientUncertainty
	return res
}

func neutral(summary string) domain.AnalysisResult {
	return domain.AnalysisResult{
		Version:             domain.AnalysisSchemaVersion,
		Themes:              []string{},
		Keywords:            []string{},
		RiskLevel:           domain.RiskNone,
		DirectionOfChange:   domain.DirectionUnclear,
		MoodScore:           DefaultMoodScore,
		TextScore:           DefaultTextScore,
		Uncertainty:         DefaultUncertainty,
		DriversPositive:     []string{},
		DriversNegative:     []string{},
		ConversationSummary: summary,
		NotableQuotes:       []string{},
	}
}

// TooShort reports whether a user transcript triggers the short-circuit.
func TooShort(transcript string) bool {
	return len([]rune(strings.TrimSpace(transcript))) < MinTranscriptChars
}

// ParseRaw decodes model text into a RawAnalysis. Code fences are stripped;
// anything that is not a JSON object is an error.
func ParseRaw(text string) (domain.RawAnalysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw domain.RawAnalysis
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errNotObject
	}
	return raw, nil
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// stringSeq keeps the non-empty string elements of a sequence, in order.
func stringSeq(v any, key string, defaulted func(string)) []string {
	out := []string{}
	switch items := v.(type) {
	case []any:
		for _, it := range items {
			if s, ok := nonEmptyString(it); ok {
				out = append(out, s)
			}
		}
	case []string:
		for _, it := range items {
			if s, ok := nonEmptyString(it); ok {
				out = append(out, s)
			}
		}
	default:
		defaulted(key)
	}
	return out
}

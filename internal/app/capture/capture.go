// Package capture accumulates transcript and visual fragments for an active
// session. Every function here is pure; persistence goes through sessions.
package capture

import (
	"strings"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

// Transcript is the rendered form of a finished conversation.
type Transcript struct {
	// Transcripts holds the user-authored turn texts, in order.
	Transcripts []string
	// FullConversation renders every turn with a role label, one per line.
	FullConversation string
}

type turnKey struct {
	role domain.Role
	text string
	ts   int64
}

func keyOf(t domain.Turn) turnKey {
	return turnKey{role: t.Role, text: t.Text, ts: t.Timestamp.UnixNano()}
}

// AppendTurns merges incoming turns into existing ones.
//
// A strictly longer incoming sequence (counted without duplicates) is taken as a fresh snapshot and
// replaces existing. Otherwise only tuples not already present are appended,
// so a shorter re-scan never drops captured turns and a repeated fragment is
// never duplicated. Malformed turns are dropped.
func AppendTurns(existing, incoming []domain.Turn) []domain.Turn {
	valid := make([]domain.Turn, 0, len(incoming))
	for _, t := range incoming {
		if wellFormed(t) {
			valid = append(valid, t)
		}
	}

	// Length is compared after dedupe so a re-scan repeating one turn is not
	// mistaken for a longer snapshot.
	if d := dedupe(valid); len(d) > len(existing) {
		return d
	}

	out := append(make([]domain.Turn, 0, len(existing)+len(valid)), existing...)
	seen := make(map[turnKey]struct{}, len(out))
	for _, t := range out {
		seen[keyOf(t)] = struct{}{}
	}
	for _, t := range valid {
		k := keyOf(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

func dedupe(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns))
	seen := make(map[turnKey]struct{}, len(turns))
	for _, t := range turns {
		k := keyOf(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

func wellFormed(t domain.Turn) bool {
	if strings.TrimSpace(t.Text) == "" {
		return false
	}
	return t.Role == domain.RoleUser || t.Role == domain.RoleAgent
}

// SetVisualSummary is last-write-wins. A nil incoming summary keeps existing.
func SetVisualSummary(existing, incoming *domain.VisualData) *domain.VisualData {
	if incoming == nil {
		return existing
	}
	v := *incoming
	if incoming.Metrics != nil {
		v.Metrics = make(map[string]float64, len(incoming.Metrics))
		for k, m := range incoming.Metrics {
			v.Metrics[k] = m
		}
	}
	return &v
}

// FinalizeTranscript renders turns for analysis.
func FinalizeTranscript(turns []domain.Turn) Transcript {
	out := Transcript{Transcripts: []string{}}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role == domain.RoleUser {
			out.Transcripts = append(out.Transcripts, t.Text)
		}
		lines = append(lines, roleLabel(t.Role)+": "+t.Text)
	}
	out.FullConversation = strings.Join(lines, "\n")
	return out
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return "User"
	case domain.RoleAgent:
		return "Agent"
	default:
		return string(r)
	}
}

// Merge returns the session mutation for one fragment, for use inside an
// atomic store update.
func Merge(frag domain.CaptureFragment) func(*domain.Session) {
	return func(s *domain.Session) {
		if len(frag.Turns) > 0 {
			td := s.TextData
			if td == nil {
				td = &domain.TextData{}
			}
			turns := AppendTurns(td.Turns, frag.Turns)
			rendered := FinalizeTranscript(turns)
			s.TextData = &domain.TextData{
				Turns:            turns,
				Transcripts:      rendered.Transcripts,
				FullConversation: rendered.FullConversation,
			}
		}
		s.VisualData = SetVisualSummary(s.VisualData, frag.Visual)
	}
}

// UserText joins the user's own turns; this is what the analyzer scores.
func UserText(s *domain.Session) string {
	if s == nil || s.TextData == nil {
		return ""
	}
	return strings.Join(FinalizeTranscript(s.TextData.Turns).Transcripts, "\n")
}

// NormalizeRoles lowercases roles and maps "assistant" to the agent role.
// Timestamps are left untouched so repeated fragments keep identical keys.
func NormalizeRoles(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	for i, t := range turns {
		t.Role = domain.Role(strings.ToLower(strings.TrimSpace(string(t.Role))))
		if t.Role == "assistant" {
			t.Role = domain.RoleAgent
		}
		out[i] = t
	}
	return out
}

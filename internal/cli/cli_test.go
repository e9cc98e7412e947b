package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/storage/sqlite"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/cli"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MM_CONFIG_FILE", "")
	t.Setenv("MM_MODE", "")
	t.Setenv("MM_STORAGE_BACKEND", "")
	t.Setenv("MM_LOG_LEVEL", "error")
}

func seed(t *testing.T, path string, fn func(ctx context.Context, store *sqlite.Store)) {
	t.Helper()
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	fn(context.Background(), store)
}

func completeSession(t *testing.T, ctx context.Context, store *sqlite.Store, id domain.SessionID, at time.Time) {
	t.Helper()
	if _, err := store.CreateSuperseding(ctx, domain.NewSession(id, "u-1", domain.AssessmentCheckIn, at), at); err != nil {
		t.Fatalf("create: %v", err)
	}
	res, _ := analysis.Validate(domain.RawAnalysis{
		"text_score":           float64(64),
		"mood_score":           float64(7),
		"themes":               []any{"sleep"},
		"conversation_summary": "Sleeping better.",
	})
	_, err := store.UpdateSession(ctx, id, func(s *domain.Session) error {
		if err := s.Activate(at); err != nil {
			return err
		}
		return s.Complete(res, res.TextScore, at.Add(time.Minute))
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.AppendTrendPoint(ctx, domain.TrendPoint{
		SessionID:      id,
		UserID:         "u-1",
		AssessmentType: domain.AssessmentCheckIn,
		Score:          res.TextScore,
		MoodScore:      res.MoodScore,
		RiskLevel:      res.RiskLevel,
		RecordedAt:     at.Add(time.Minute),
	}); err != nil {
		t.Fatalf("trend point: %v", err)
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := cli.Execute(context.Background(), &out, &errOut, args)
	return out.String(), errOut.String(), err
}

func TestReportNoData(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "checkins.db")

	out, _, err := run(t, "--db", db, "report", "--user", "u-1", "--days", "7")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["status"] != "no_data" || got["period_days"] != float64(7) {
		t.Fatalf("unexpected output %v", got)
	}
}

func TestReportAggregatesStoredSessions(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "checkins.db")
	seed(t, db, func(ctx context.Context, store *sqlite.Store) {
		completeSession(t, ctx, store, "s-1", time.Now().UTC().Add(-2*time.Hour))
	})

	out, _, err := run(t, "--db", db, "report", "--user", "u-1", "--days", "7")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var bundle domain.ReportBundle
	if err := json.Unmarshal([]byte(out), &bundle); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if bundle.CheckInCount != 1 || bundle.AverageScore == nil || *bundle.AverageScore != 64 {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
	if bundle.ThemeFrequency["sleep"] != 1 {
		t.Fatalf("themes: %v", bundle.ThemeFrequency)
	}

	text, _, err := run(t, "--db", db, "--text", "report", "--user", "u-1", "--days", "7")
	if err != nil {
		t.Fatalf("report --text: %v", err)
	}
	if !strings.Contains(text, "check-ins:     1") || !strings.Contains(text, "sleep=1") {
		t.Fatalf("unexpected text report:\n%s", text)
	}
}

func TestReportRejectsUnsupportedPeriod(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "checkins.db")

	_, errOut, err := run(t, "--db", db, "report", "--user", "u-1", "--days", "10")
	if err == nil {
		t.Fatal("expected error for 10-day period")
	}
	if !strings.Contains(errOut, `"status":"error"`) {
		t.Fatalf("expected JSON error, got %q", errOut)
	}
}

func TestSessionsAndTrend(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "checkins.db")
	now := time.Now().UTC()
	seed(t, db, func(ctx context.Context, store *sqlite.Store) {
		completeSession(t, ctx, store, "s-old", now.Add(-48*time.Hour))
		completeSession(t, ctx, store, "s-new", now.Add(-time.Hour))
	})

	out, _, err := run(t, "--db", db, "sessions", "--user", "u-1", "--days", "7")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	var rows []struct {
		ID        string `json:"id"`
		MoodScore int    `json:"mood_score"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 2 || rows[0].ID != "s-new" || rows[1].ID != "s-old" || rows[0].MoodScore != 7 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	out, _, err = run(t, "--db", db, "trend", "--user", "u-1")
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	var trend struct {
		Points []domain.TrendPoint `json:"points"`
		Latest *float64            `json:"latest"`
	}
	if err := json.Unmarshal([]byte(out), &trend); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(trend.Points) != 2 || trend.Points[0].SessionID != "s-old" {
		t.Fatalf("expected chronological points, got %+v", trend.Points)
	}
	if trend.Latest == nil || *trend.Latest != 64 {
		t.Fatalf("latest: %v", trend.Latest)
	}
}

func TestCancelPendingSession(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "checkins.db")
	now := time.Now().UTC()
	seed(t, db, func(ctx context.Context, store *sqlite.Store) {
		if _, err := store.CreateSuperseding(ctx, domain.NewSession("s-stuck", "u-1", domain.AssessmentCheckIn, now), now); err != nil {
			t.Fatalf("create: %v", err)
		}
	})

	out, _, err := run(t, "--db", db, "--text", "cancel", "s-stuck", "--reason", domain.CancelCaptureFailed)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(out, "Cancelled s-stuck (capture_failed)") {
		t.Fatalf("unexpected output %q", out)
	}

	seed(t, db, func(ctx context.Context, store *sqlite.Store) {
		got, err := store.GetSession(ctx, "s-stuck")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.StatusCancelled || got.CancelReason != domain.CancelCaptureFailed {
			t.Fatalf("unexpected session %+v", got)
		}
	})

	// A second cancel is a no-op and keeps the original reason.
	out, _, err = run(t, "--db", db, "cancel", "s-stuck")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !strings.Contains(out, `"cancel_reason": "capture_failed"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCancelCompletedSessionFails(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "checkins.db")
	seed(t, db, func(ctx context.Context, store *sqlite.Store) {
		completeSession(t, ctx, store, "s-done", time.Now().UTC().Add(-time.Hour))
	})

	_, errOut, err := run(t, "--db", db, "--text", "cancel", "s-done")
	if err == nil {
		t.Fatal("expected cancel of completed session to fail")
	}
	if !strings.HasPrefix(errOut, "Error: ") {
		t.Fatalf("expected text error, got %q", errOut)
	}
}

func TestUnknownBackend(t *testing.T) {
	quietEnv(t)
	if _, _, err := run(t, "--backend", "memory", "report", "--user", "u-1"); err == nil {
		t.Fatal("expected memory backend to be rejected")
	}
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

func (c *cli) reportCmd() *cobra.Command {
	var (
		user string
		days int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate a user's completed check-ins over 7, 14, 30 or 90 days",
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := c.app.Reports.Generate(cmd.Context(), domain.UserID(user), days)
			if errors.Is(err, domain.ErrEmptyRange) {
				return c.output(map[string]any{"status": "no_data", "user_id": user, "period_days": days}, func(w io.Writer) {
					fmt.Fprintf(w, "No completed check-ins for %s in the last %d days.\n", user, days)
				})
			}
			if err != nil {
				return err
			}
			return c.output(bundle, func(w io.Writer) { printReport(w, bundle) })
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id")
	cmd.Flags().IntVar(&days, "days", 30, "Period in days (7, 14, 30, 90)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type sessionRow struct {
	ID             domain.SessionID      `json:"id"`
	AssessmentType domain.AssessmentType `json:"assessment_type"`
	CreatedAt      time.Time             `json:"created_at"`
	FinalScore     *float64              `json:"final_score"`
	MoodScore      int                   `json:"mood_score"`
	RiskLevel      domain.RiskLevel      `json:"risk_level"`
	Summary        string                `json:"summary"`
}

func (c *cli) sessionsCmd() *cobra.Command {
	var (
		user  string
		days  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List a user's completed check-ins, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			since := c.now().Add(-time.Duration(days) * 24 * time.Hour)
			list, err := c.app.SessionStore.ListCompletedSessions(cmd.Context(), domain.UserID(user), since, limit)
			if err != nil {
				return err
			}

			rows := make([]sessionRow, 0, len(list))
			for _, s := range list {
				row := sessionRow{
					ID:             s.ID,
					AssessmentType: s.AssessmentType,
					CreatedAt:      s.CreatedAt,
					FinalScore:     s.FinalScore,
				}
				if s.Analysis != nil {
					row.MoodScore = s.Analysis.MoodScore
					row.RiskLevel = s.Analysis.RiskLevel
					row.Summary = s.Analysis.ConversationSummary
				}
				rows = append(rows, row)
			}

			return c.output(rows, func(w io.Writer) {
				if len(rows) == 0 {
					fmt.Fprintln(w, "No completed sessions.")
					return
				}
				for _, r := range rows {
					score := "-"
					if r.FinalScore != nil {
						score = fmt.Sprintf("%.0f", *r.FinalScore)
					}
					fmt.Fprintf(w, "%s  %s  %-8s score=%s mood=%d risk=%s\n",
						r.CreatedAt.Format("2006-01-02 15:04"), r.ID, r.AssessmentType, score, r.MoodScore, r.RiskLevel)
				}
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id")
	cmd.Flags().IntVar(&days, "days", 30, "Look back this many days")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (0 = all)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) trendCmd() *cobra.Command {
	var (
		user  string
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show a user's score series for one assessment type",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := c.app.Trends.GetUserTrend(cmd.Context(), domain.UserID(user), domain.AssessmentType(kind), limit)
			if err != nil {
				return err
			}
			return c.output(summary, func(w io.Writer) {
				if len(summary.Points) == 0 {
					fmt.Fprintf(w, "No %s points for %s.\n", summary.AssessmentType, user)
					return
				}
				for _, p := range summary.Points {
					fmt.Fprintf(w, "%s  %5.1f  mood=%d risk=%s\n",
						p.RecordedAt.Format("2006-01-02"), p.Score, p.MoodScore, p.RiskLevel)
				}
				fmt.Fprintf(w, "latest=%.0f change=%+.0f\n", *summary.Latest, *summary.Change)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id")
	cmd.Flags().StringVar(&kind, "type", string(domain.AssessmentCheckIn), "Assessment type: baseline or checkin")
	cmd.Flags().IntVar(&limit, "limit", 30, "Number of points")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) cancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a pending or active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.app.Sessions.Cancel(cmd.Context(), domain.SessionID(args[0]), reason)
			if err != nil {
				return err
			}
			result := map[string]any{
				"status":        "ok",
				"session_id":    sess.ID,
				"cancel_reason": sess.CancelReason,
			}
			return c.output(result, func(w io.Writer) {
				fmt.Fprintf(w, "Cancelled %s (%s)\n", sess.ID, sess.CancelReason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", domain.CancelAbandoned, "Cancel reason")
	return cmd
}

func printReport(w io.Writer, b *domain.ReportBundle) {
	fmt.Fprintf(w, "Report for %s, last %d days (%s to %s)\n",
		b.UserID, b.PeriodDays, b.DateRange.Start.Format("2006-01-02"), b.DateRange.End.Format("2006-01-02"))
	fmt.Fprintf(w, "  check-ins:     %d\n", b.CheckInCount)
	if b.AverageScore != nil {
		fmt.Fprintf(w, "  average score: %.0f\n", *b.AverageScore)
	}
	if b.AverageMood != nil {
		fmt.Fprintf(w, "  average mood:  %.1f\n", *b.AverageMood)
	}
	fmt.Fprintf(w, "  highest risk:  %s\n", b.HighestRisk)

	if len(b.ThemeFrequency) > 0 {
		themes := make([]string, 0, len(b.ThemeFrequency))
		for t := range b.ThemeFrequency {
			themes = append(themes, t)
		}
		sort.Strings(themes)
		parts := make([]string, 0, len(themes))
		for _, t := range themes {
			parts = append(parts, fmt.Sprintf("%s=%d", t, b.ThemeFrequency[t]))
		}
		fmt.Fprintf(w, "  themes:        %s\n", strings.Join(parts, ", "))
	}
	if len(b.TopPositiveDrivers) > 0 {
		fmt.Fprintf(w, "  helping:       %s\n", strings.Join(b.TopPositiveDrivers, ", "))
	}
	if len(b.TopConcernDrivers) > 0 {
		fmt.Fprintf(w, "  concerns:      %s\n", strings.Join(b.TopConcernDrivers, ", "))
	}
	for _, s := range b.Summaries {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}

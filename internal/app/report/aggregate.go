// Package report rolls completed sessions up into time-windowed bundles.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

const (
	DefaultDriverLimit  = 10
	DefaultSummaryLimit = 15
)

var allowedPeriods = map[int]bool{7: true, 14: true, 30: true, 90: true}

// ValidPeriod reports whether days is an accepted report window.
func ValidPeriod(days int) bool {
	return allowedPeriods[days]
}

type Input struct {
	UserID     domain.UserID
	PeriodDays int
	Now        time.Time
	Sessions   []*domain.Session

	DriverLimit  int
	SummaryLimit int
}

// Aggregate reduces the completed sessions inside the window into a bundle.
// It is pure: identical input yields identical output. An empty window
// returns ErrEmptyRange.
func Aggregate(in Input) (*domain.ReportBundle, error) {
	if !ValidPeriod(in.PeriodDays) {
		return nil, fmt.Errorf("%w: period %d days", domain.ErrInvalidInput, in.PeriodDays)
	}
	driverLimit := in.DriverLimit
	if driverLimit <= 0 {
		driverLimit = DefaultDriverLimit
	}
	summaryLimit := in.SummaryLimit
	if summaryLimit <= 0 {
		summaryLimit = DefaultSummaryLimit
	}

	end := in.Now
	start := end.Add(-time.Duration(in.PeriodDays) * 24 * time.Hour)

	var inRange []*domain.Session
	for _, s := range in.Sessions {
		if s == nil || s.UserID != in.UserID || s.Status != domain.StatusCompleted || s.Analysis == nil {
			continue
		}
		if s.CreatedAt.Before(start) || s.CreatedAt.After(end) {
			continue
		}
		inRange = append(inRange, s)
	}
	if len(inRange) == 0 {
		return nil, domain.ErrEmptyRange
	}

	// Most recent first; id breaks ties so the order never depends on input order.
	sort.SliceStable(inRange, func(i, j int) bool {
		a, b := inRange[i], inRange[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	bundle := &domain.ReportBundle{
		UserID:             in.UserID,
		PeriodDays:         in.PeriodDays,
		DateRange:          domain.DateRange{Start: start, End: end},
		CheckInCount:       len(inRange),
		ThemeFrequency:     map[string]int{},
		TopPositiveDrivers: []string{},
		TopConcernDrivers:  []string{},
		Summaries:          []string{},
		RiskLevelCounts:    map[domain.RiskLevel]int{},
		HighestRisk:        domain.RiskNone,
		ScoreSeries:        []domain.ScorePoint{},
		GeneratedAt:        end,
	}

	var (
		scoreSum float64
		scoreN   int
		moodSum  float64
		moodN    int
	)
	for _, s := range inRange {
		a := s.Analysis

		if s.FinalScore != nil {
			scoreSum += *s.FinalScore
			scoreN++
		}
		moodSum += float64(a.MoodScore)
		moodN++

		for _, theme := range a.Themes {
			bundle.ThemeFrequency[theme]++
		}

		bundle.TopPositiveDrivers = appendCapped(bundle.TopPositiveDrivers, a.DriversPositive, driverLimit)
		bundle.TopConcernDrivers = appendCapped(bundle.TopConcernDrivers, a.DriversNegative, driverLimit)

		if len(bundle.Summaries) < summaryLimit && a.ConversationSummary != "" {
			bundle.Summaries = append(bundle.Summaries, a.ConversationSummary)
		}

		bundle.RiskLevelCounts[a.RiskLevel]++
		if a.RiskLevel.Rank() > bundle.HighestRisk.Rank() {
			bundle.HighestRisk = a.RiskLevel
		}
	}

	if scoreN > 0 {
		avg := math.Round(scoreSum / float64(scoreN))
		bundle.AverageScore = &avg
	}
	if moodN > 0 {
		avg := math.Round(moodSum/float64(moodN)*10) / 10
		bundle.AverageMood = &avg
	}

	for i := len(inRange) - 1; i >= 0; i-- {
		s := inRange[i]
		if s.FinalScore == nil {
			continue
		}
		bundle.ScoreSeries = append(bundle.ScoreSeries, domain.ScorePoint{
			SessionID: s.ID,
			Date:      s.CreatedAt,
			Score:     *s.FinalScore,
		})
	}

	return bundle, nil
}

// appendCapped appends items in order until dst holds limit entries.
func appendCapped(dst, items []string, limit int) []string {
	for _, it := range items {
		if len(dst) >= limit {
			break
		}
		dst = append(dst, it)
	}
	return dst
}

package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

const DefaultNarrativeTimeout = 20 * time.Second

type Options struct {
	DriverLimit      int
	SummaryLimit     int
	NarrativeTimeout time.Duration
}

// Service fetches a user's completed sessions and aggregates them on demand.
type Service struct {
	store    domain.SessionStore
	narrator domain.Narrator
	opts     Options
	now      func() time.Time
}

// NewService builds the report service. narrator may be nil.
func NewService(store domain.SessionStore, narrator domain.Narrator, opts Options) *Service {
	if opts.NarrativeTimeout <= 0 {
		opts.NarrativeTimeout = DefaultNarrativeTimeout
	}
	return &Service{
		store:    store,
		narrator: narrator,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate returns the bundle for the last periodDays, or ErrEmptyRange.
func (s *Service) Generate(ctx context.Context, userID domain.UserID, periodDays int) (*domain.ReportBundle, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if !ValidPeriod(periodDays) {
		return nil, fmt.Errorf("%w: period %d days", domain.ErrInvalidInput, periodDays)
	}

	log := observability.LoggerFromContext(ctx).With("user_id", userID, "period_days", periodDays)

	now := s.now()
	since := now.Add(-time.Duration(periodDays) * 24 * time.Hour)

	list, err := s.store.ListCompletedSessions(ctx, userID, since, 0)
	if err != nil {
		log.Error("failed to list sessions", "error", err)
		return nil, err
	}

	bundle, err := Aggregate(Input{
		UserID:       userID,
		PeriodDays:   periodDays,
		Now:          now,
		Sessions:     list,
		DriverLimit:  s.opts.DriverLimit,
		SummaryLimit: s.opts.SummaryLimit,
	})
	if errors.Is(err, domain.ErrEmptyRange) {
		log.Info("no completed sessions in range")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if s.narrator != nil {
		nctx, cancel := context.WithTimeout(ctx, s.opts.NarrativeTimeout)
		text, err := s.narrator.NarrateReport(nctx, bundle)
		cancel()
		if err != nil {
			log.Warn("report narrative failed", "error", err)
		} else {
			bundle.Narrative = text
		}
	}

	log.Info("report generated", "check_ins", bundle.CheckInCount)
	return bundle, nil
}

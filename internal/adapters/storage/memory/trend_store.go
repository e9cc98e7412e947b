package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

type seriesKey struct {
	user domain.UserID
	kind domain.AssessmentType
}

// TrendStore is a simple in-memory implementation of domain.TrendStore.
// It is NOT persistent and is only suitable for development / local mode.
type TrendStore struct {
	mu     sync.RWMutex
	series map[seriesKey][]domain.TrendPoint
}

func NewTrendStore() *TrendStore {
	return &TrendStore{
		series: make(map[seriesKey][]domain.TrendPoint),
	}
}

// AppendTrendPoint adds p to its series. A point for a session already in
// the series replaces it.
func (s *TrendStore) AppendTrendPoint(_ context.Context, p domain.TrendPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey{user: p.UserID, kind: p.AssessmentType}
	points := s.series[key]
	for i := range points {
		if points[i].SessionID == p.SessionID {
			points[i] = p
			return nil
		}
	}
	points = append(points, p)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})
	s.series[key] = points
	return nil
}

// ListTrendPoints returns the last `limit` points for a series.
// If limit <= 0, returns all.
func (s *TrendStore) ListTrendPoints(_ context.Context, userID domain.UserID, kind domain.AssessmentType, limit int) ([]domain.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[seriesKey{user: userID, kind: kind}]
	if limit <= 0 || limit > len(points) {
		limit = len(points)
	}

	selected := points[len(points)-limit:]
	return append(make([]domain.TrendPoint, 0, len(selected)), selected...), nil
}

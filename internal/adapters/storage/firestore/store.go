package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

// Store implements domain.SessionStore and domain.TrendStore on Firestore.
//
// Listing completed sessions needs a composite index on
// (user_id, status, created_at desc); trend listing needs
// (user_id, assessment_type, recorded_at desc).
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (MM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("checkin_sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

// userLockDoc is read and written by every create for a user, so concurrent
// creates for the same user conflict inside the transaction.
func (s *Store) userLockDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("checkin_users").Doc(string(userID))
}

func (s *Store) trendCol() *firestore.CollectionRef {
	return s.client.Collection("checkin_trend_points")
}

// mapErr translates gRPC status codes into domain errors.
func mapErr(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrSessionNotFound
	case codes.Aborted, codes.AlreadyExists:
		return fmt.Errorf("%w: firestore %s: %v", domain.ErrConflict, op, err)
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

// isDomainErr reports whether err came from the domain callback and must be
// returned unchanged.
func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrSessionNotFound)
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSuperseding(ctx context.Context, session *domain.Session, now time.Time) ([]domain.SessionID, error) {
	var cancelled []domain.SessionID

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cancelled = nil
		lock := s.userLockDoc(session.UserID)

		// All reads happen before any write.
		if _, err := tx.Get(lock); err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		q := s.sessionsCol().
			Where("user_id", "==", string(session.UserID)).
			Where("status", "==", string(domain.StatusPending))
		snaps, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}

		for _, snap := range snaps {
			var doc sessionDoc
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode sessionDoc: %w", err)
			}
			prev := fromSessionDoc(snap.Ref.ID, doc)
			if err := prev.Cancel(domain.CancelSuperseded, now); err != nil {
				return err
			}
			if err := tx.Set(snap.Ref, toSessionDoc(prev)); err != nil {
				return err
			}
			cancelled = append(cancelled, prev.ID)
		}

		if err := tx.Create(s.sessionDoc(session.ID), toSessionDoc(session)); err != nil {
			return err
		}
		return tx.Set(lock, map[string]interface{}{"updated_at": now})
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, mapErr("CreateSuperseding", err)
	}
	return cancelled, nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		return nil, mapErr("GetSession", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return fromSessionDoc(snap.Ref.ID, doc), nil
}

func (s *Store) UpdateSession(ctx context.Context, id domain.SessionID, fn func(*domain.Session) error) (*domain.Session, error) {
	var updated *domain.Session

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.sessionDoc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrSessionNotFound
			}
			return err
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode sessionDoc: %w", err)
		}
		working := fromSessionDoc(snap.Ref.ID, doc)
		if err := fn(working); err != nil {
			return err
		}

		updated = working
		return tx.Set(ref, toSessionDoc(working))
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, mapErr("UpdateSession", err)
	}
	return updated, nil
}

func (s *Store) ListCompletedSessions(ctx context.Context, userID domain.UserID, since time.Time, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().
		Where("user_id", "==", string(userID)).
		Where("status", "==", string(domain.StatusCompleted)).
		Where("created_at", ">=", since).
		OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListCompletedSessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, fromSessionDoc(snap.Ref.ID, doc))
	}
	return out, nil
}

// ─────────────────────────────────────────
// TrendStore implementation
// ─────────────────────────────────────────

// AppendTrendPoint is keyed by session id, so replays overwrite.
func (s *Store) AppendTrendPoint(ctx context.Context, p domain.TrendPoint) error {
	_, err := s.trendCol().Doc(string(p.SessionID)).Set(ctx, toTrendPointDoc(p))
	if err != nil {
		return fmt.Errorf("firestore AppendTrendPoint: %w", err)
	}
	return nil
}

func (s *Store) ListTrendPoints(ctx context.Context, userID domain.UserID, kind domain.AssessmentType, limit int) ([]domain.TrendPoint, error) {
	q := s.trendCol().
		Where("user_id", "==", string(userID)).
		Where("assessment_type", "==", string(kind)).
		OrderBy("recorded_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.TrendPoint
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListTrendPoints: %w", err)
		}

		var doc trendPointDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode trendPointDoc: %w", err)
		}
		out = append(out, fromTrendPointDoc(snap.Ref.ID, doc))
	}

	// Newest first from the query; callers want oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

type sessionRow struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	AssessmentType string          `db:"assessment_type"`
	FirstName      string          `db:"first_name"`
	Status         string          `db:"status"`
	CancelReason   string          `db:"cancel_reason"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	ActivatedAt    *time.Time      `db:"activated_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	CancelledAt    *time.Time      `db:"cancelled_at"`
	TextData       sql.NullString  `db:"text_data"`
	VisualData     sql.NullString  `db:"visual_data"`
	Analysis       sql.NullString  `db:"analysis"`
	FinalScore     sql.NullFloat64 `db:"final_score"`
}

const sessionColumns = `id, user_id, assessment_type, first_name, status, cancel_reason,
	created_at, updated_at, activated_at, completed_at, cancelled_at,
	text_data, visual_data, analysis, final_score`

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toRow(s *domain.Session) (sessionRow, error) {
	row := sessionRow{
		ID:             string(s.ID),
		UserID:         string(s.UserID),
		AssessmentType: string(s.AssessmentType),
		FirstName:      s.FirstName,
		Status:         string(s.Status),
		CancelReason:   s.CancelReason,
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
		ActivatedAt:    utcPtr(s.ActivatedAt),
		CompletedAt:    utcPtr(s.CompletedAt),
		CancelledAt:    utcPtr(s.CancelledAt),
	}
	if s.FinalScore != nil {
		row.FinalScore = sql.NullFloat64{Float64: *s.FinalScore, Valid: true}
	}

	var err error
	if row.TextData, err = marshalNullable(s.TextData, s.TextData != nil); err != nil {
		return row, fmt.Errorf("encode text_data: %w", err)
	}
	if row.VisualData, err = marshalNullable(s.VisualData, s.VisualData != nil); err != nil {
		return row, fmt.Errorf("encode visual_data: %w", err)
	}
	if row.Analysis, err = marshalNullable(s.Analysis, s.Analysis != nil); err != nil {
		return row, fmt.Errorf("encode analysis: %w", err)
	}
	return row, nil
}

func fromRow(row sessionRow) (*domain.Session, error) {
	s := &domain.Session{
		ID:             domain.SessionID(row.ID),
		UserID:         domain.UserID(row.UserID),
		AssessmentType: domain.AssessmentType(row.AssessmentType),
		FirstName:      row.FirstName,
		Status:         domain.Status(row.Status),
		CancelReason:   row.CancelReason,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		ActivatedAt:    utcPtr(row.ActivatedAt),
		CompletedAt:    utcPtr(row.CompletedAt),
		CancelledAt:    utcPtr(row.CancelledAt),
	}
	if row.FinalScore.Valid {
		v := row.FinalScore.Float64
		s.FinalScore = &v
	}
	if row.TextData.Valid {
		s.TextData = &domain.TextData{}
		if err := json.Unmarshal([]byte(row.TextData.String), s.TextData); err != nil {
			return nil, fmt.Errorf("decode text_data: %w", err)
		}
	}
	if row.VisualData.Valid {
		s.VisualData = &domain.VisualData{}
		if err := json.Unmarshal([]byte(row.VisualData.String), s.VisualData); err != nil {
			return nil, fmt.Errorf("decode visual_data: %w", err)
		}
	}
	if row.Analysis.Valid {
		s.Analysis = &domain.AnalysisResult{}
		if err := json.Unmarshal([]byte(row.Analysis.String), s.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		s.Analysis.EnsureSequences()
	}
	return s, nil
}

const insertSession = `INSERT INTO checkin_sessions (` + sessionColumns + `) VALUES (
	:id, :user_id, :assessment_type, :first_name, :status, :cancel_reason,
	:created_at, :updated_at, :activated_at, :completed_at, :cancelled_at,
	:text_data, :visual_data, :analysis, :final_score)`

const updateSession = `UPDATE checkin_sessions SET
	status = :status,
	cancel_reason = :cancel_reason,
	first_name = :first_name,
	updated_at = :updated_at,
	activated_at = :activated_at,
	completed_at = :completed_at,
	cancelled_at = :cancelled_at,
	text_data = :text_data,
	visual_data = :visual_data,
	analysis = :analysis,
	final_score = :final_score
	WHERE id = :id`

func (s *Store) CreateSuperseding(ctx context.Context, session *domain.Session, now time.Time) ([]domain.SessionID, error) {
	var cancelled []domain.SessionID

	err := s.inTx(ctx, "CreateSuperseding", func(tx *sqlx.Tx) error {
		var pending []sessionRow
		q := `SELECT ` + sessionColumns + ` FROM checkin_sessions WHERE user_id = ? AND status = ?`
		if err := tx.SelectContext(ctx, &pending, q, string(session.UserID), string(domain.StatusPending)); err != nil {
			return err
		}

		for _, row := range pending {
			prev, err := fromRow(row)
			if err != nil {
				return err
			}
			if err := prev.Cancel(domain.CancelSuperseded, now); err != nil {
				return err
			}
			if err := writeRow(ctx, tx, updateSession, prev); err != nil {
				return err
			}
			cancelled = append(cancelled, prev.ID)
		}

		return writeRow(ctx, tx, insertSession, session)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var row sessionRow
	q := `SELECT ` + sessionColumns + ` FROM checkin_sessions WHERE id = ?`
	err := s.db.GetContext(ctx, &row, q, string(id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, mapErr("GetSession", err)
	}
	return fromRow(row)
}

func (s *Store) UpdateSession(ctx context.Context, id domain.SessionID, fn func(*domain.Session) error) (*domain.Session, error) {
	var updated *domain.Session

	err := s.inTx(ctx, "UpdateSession", func(tx *sqlx.Tx) error {
		var row sessionRow
		q := `SELECT ` + sessionColumns + ` FROM checkin_sessions WHERE id = ?`
		err := tx.GetContext(ctx, &row, q, string(id))
		if err == sql.ErrNoRows {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		working, err := fromRow(row)
		if err != nil {
			return err
		}
		if err := fn(working); err != nil {
			return err
		}
		if err := writeRow(ctx, tx, updateSession, working); err != nil {
			return err
		}
		updated = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListCompletedSessions(ctx context.Context, userID domain.UserID, since time.Time, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}

	var rows []sessionRow
	q := `SELECT ` + sessionColumns + ` FROM checkin_sessions
		WHERE user_id = ? AND status = ? AND created_at >= ?
		ORDER BY created_at DESC, id ASC
		LIMIT ?`
	err := s.db.SelectContext(ctx, &rows, q, string(userID), string(domain.StatusCompleted), since.UTC(), limit)
	if err != nil {
		return nil, mapErr("ListCompletedSessions", err)
	}

	out := make([]*domain.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func writeRow(ctx context.Context, tx *sqlx.Tx, query string, s *domain.Session) error {
	row, err := toRow(s)
	if err != nil {
		return err
	}
	_, err = tx.NamedExecContext(ctx, query, row)
	return err
}

// inTx runs fn in one transaction. Errors from fn that are already domain
// errors pass through; driver errors are mapped.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(op, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isDomainErr(err) {
			return err
		}
		return mapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(op, err)
	}
	return nil
}

// CountPending is used by mmctl and tests to check the one-pending rule.
func (s *Store) CountPending(ctx context.Context, userID domain.UserID) (int, error) {
	var n int
	q := `SELECT COUNT(*) FROM checkin_sessions WHERE user_id = ? AND status = ?`
	if err := s.db.GetContext(ctx, &n, q, string(userID), string(domain.StatusPending)); err != nil {
		return 0, mapErr("CountPending", err)
	}
	return n, nil
}

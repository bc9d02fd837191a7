package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"coworkgate/internal/types"
)

// SessionRepository provides data access for the sessions table. The
// sessions_one_open_per_student partial index allows at most one row with
// check_out_at IS NULL per student.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a SessionRepository over db.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, student_id, check_in_at, check_out_at, duration_minutes`

func scanSession(row pgx.Row) (*types.Session, error) {
	var s types.Session
	if err := row.Scan(&s.ID, &s.StudentID, &s.CheckInAt, &s.CheckOutAt, &s.DurationMinutes); err != nil {
		return nil, err
	}
	return &s, nil
}

// Open inserts an open session.
func (r *SessionRepository) Open(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, student_id, check_in_at) VALUES ($1, $2, $3)`,
		s.ID,
		s.StudentID,
		s.CheckInAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictOpenSession, "student already has an open session", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to open session", err)
	}
	return nil
}

// FindOpen returns the student's open session or not_found_session.
func (r *SessionRepository) FindOpen(ctx context.Context, studentID string) (*types.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE student_id = $1 AND check_out_at IS NULL
		 ORDER BY check_in_at DESC
		 LIMIT 1`,
		studentID,
	))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundSession, "open session")
	}
	return s, nil
}

// Close stamps check-out on a still-open session.
func (r *SessionRepository) Close(ctx context.Context, id string, at time.Time, durationMinutes int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET check_out_at = $2, duration_minutes = $3
		 WHERE id = $1 AND check_out_at IS NULL`,
		id,
		at,
		durationMinutes,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to close session", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSession, "open session not found", nil)
	}
	return nil
}

// ListByStudent returns the most recent sessions first.
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]types.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE student_id = $1
		 ORDER BY check_in_at DESC
		 LIMIT $2`,
		studentID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list sessions", err)
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan session", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate sessions", err)
	}
	return out, nil
}

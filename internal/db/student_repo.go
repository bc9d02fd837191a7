package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"coworkgate/internal/types"
)

// StudentRepository provides data access for the students table. The
// membership is stored inline as membership_* columns.
type StudentRepository struct {
	db DBTX
}

// NewStudentRepository creates a StudentRepository over db.
func NewStudentRepository(db DBTX) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, full_name, email, access_code, is_checked_in, last_check_in_at, active,
	membership_plan, membership_status, membership_valid_from, membership_valid_until,
	membership_amount, membership_method, created_at, updated_at`

func scanStudent(row pgx.Row) (*types.Student, error) {
	var s types.Student
	err := row.Scan(
		&s.ID,
		&s.FullName,
		&s.Email,
		&s.AccessCode,
		&s.IsCheckedIn,
		&s.LastCheckInAt,
		&s.Active,
		&s.Membership.PlanName,
		&s.Membership.Status,
		&s.Membership.ValidFrom,
		&s.Membership.ValidUntil,
		&s.Membership.AmountPaid,
		&s.Membership.PaymentMethod,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID returns the student or not_found_student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*types.Student, error) {
	s, err := scanStudent(r.db.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundStudent, "student")
	}
	return s, nil
}

// GetByAccessCode returns the student holding the kiosk code.
func (r *StudentRepository) GetByAccessCode(ctx context.Context, code string) (*types.Student, error) {
	s, err := scanStudent(r.db.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE access_code = $1`, code))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundStudent, "student")
	}
	return s, nil
}

// LockByID is GetByID with FOR UPDATE.
func (r *StudentRepository) LockByID(ctx context.Context, id string) (*types.Student, error) {
	s, err := scanStudent(r.db.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundStudent, "student")
	}
	return s, nil
}

// UpdateMembership overwrites the membership columns and the active flag.
func (r *StudentRepository) UpdateMembership(ctx context.Context, id string, m types.Membership, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE students SET
			membership_plan = $2,
			membership_status = $3,
			membership_valid_from = $4,
			membership_valid_until = $5,
			membership_amount = $6,
			membership_method = $7,
			active = $8,
			updated_at = NOW()
		 WHERE id = $1`,
		id,
		m.PlanName,
		m.Status,
		m.ValidFrom,
		m.ValidUntil,
		m.AmountPaid,
		m.PaymentMethod,
		active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update membership", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil)
	}
	return nil
}

// SetCheckedIn flips is_checked_in only while it still equals expected.
// Checking in also stamps last_check_in_at.
func (r *StudentRepository) SetCheckedIn(ctx context.Context, id string, expected bool, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE students SET
			is_checked_in = $3,
			last_check_in_at = CASE WHEN $3 THEN $4 ELSE last_check_in_at END,
			updated_at = $4
		 WHERE id = $1 AND is_checked_in = $2`,
		id,
		expected,
		!expected,
		at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to toggle check-in", err)
	}
	return tag.RowsAffected() == 1, nil
}

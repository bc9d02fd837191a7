// Package access implements the kiosk check-in/check-out gate.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"coworkgate/internal/plans"
	"coworkgate/internal/telemetry"
	"coworkgate/internal/types"
)

// Action is the direction of a toggle.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// Denial reasons carried in the details of access_membership_inactive.
const (
	ReasonPendingPayment = "pending_payment"
	ReasonCancelled      = "cancelled"
	ReasonNotStarted     = "not_started"
	ReasonExpired        = "expired"
)

// WindowResolver returns the daily access window of a plan name.
type WindowResolver interface {
	Window(ctx context.Context, name string) (start, end int, ok bool, err error)
}

// Result is the outcome of a successful toggle.
type Result struct {
	Action  Action
	Student *types.Student
	Session *types.Session
}

// Gate validates a student's membership and flips their check-in state.
type Gate struct {
	tx      types.TransactionManager
	repos   types.RepositoryRegistry
	windows WindowResolver
	metrics telemetry.Collector
	loc     *time.Location
	clock   types.Clock
	logger  *slog.Logger
}

// NewGate creates a Gate. loc is the business time zone in which access
// windows are evaluated.
func NewGate(tx types.TransactionManager, repos types.RepositoryRegistry, windows WindowResolver, metrics telemetry.Collector, loc *time.Location, logger *slog.Logger) *Gate {
	if metrics == nil {
		metrics = telemetry.Noop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		tx:      tx,
		repos:   repos,
		windows: windows,
		metrics: metrics,
		loc:     loc,
		clock:   time.Now,
		logger:  logger,
	}
}

// WithClock overrides the time source.
func (g *Gate) WithClock(clock types.Clock) *Gate {
	g.clock = clock
	return g
}

// Toggle checks the student holding code in or out. Validation failures
// return before any write.
func (g *Gate) Toggle(ctx context.Context, code string) (*Result, error) {
	res, err := g.toggle(ctx, code)
	action, result := "unknown", "ok"
	if res != nil {
		action = string(res.Action)
	}
	if err != nil {
		result = "error"
		if appErr, ok := types.AsAppError(err); ok {
			result = string(appErr.Code)
		}
	}
	g.metrics.RecordAccess(ctx, action, result)
	return res, err
}

func (g *Gate) toggle(ctx context.Context, code string) (*Result, error) {
	if code == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField, "access code is required", nil,
			map[string]any{"fields": []string{"accessCode"}})
	}

	student, err := g.repos.Students().GetByAccessCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := g.clock()
	if err := checkValidity(student.Membership, now); err != nil {
		return nil, err
	}
	if err := g.checkWindow(ctx, student.Membership.PlanName, now); err != nil {
		return nil, err
	}

	logger := types.LoggerFromContext(ctx, g.logger).With("student_id", student.ID)
	expected := student.IsCheckedIn
	res := &Result{Action: ActionCheckIn}
	if expected {
		res.Action = ActionCheckOut
	}

	err = g.tx.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		flipped, err := repos.Students().SetCheckedIn(ctx, student.ID, expected, now)
		if err != nil {
			return err
		}
		if !flipped {
			return types.NewAppError(types.ErrCodeConflictCheckIn,
				"check-in state changed concurrently, scan again", nil)
		}

		if res.Action == ActionCheckIn {
			sess := &types.Session{ID: uuid.New().String(), StudentID: student.ID, CheckInAt: now}
			if err := repos.Sessions().Open(ctx, sess); err != nil {
				return err
			}
			res.Session = sess
			return nil
		}

		open, err := repos.Sessions().FindOpen(ctx, student.ID)
		if types.IsNotFound(err) {
			logger.WarnContext(ctx, "check-out without an open session")
			return nil
		}
		if err != nil {
			return err
		}
		minutes := DurationMinutes(open.CheckInAt, now)
		if err := repos.Sessions().Close(ctx, open.ID, now, minutes); err != nil {
			return err
		}
		open.CheckOutAt, open.DurationMinutes = &now, &minutes
		res.Session = open
		return nil
	})
	if err != nil {
		return nil, err
	}

	student.IsCheckedIn = !expected
	if res.Action == ActionCheckIn {
		student.LastCheckInAt = &now
	}
	res.Student = student

	logger.InfoContext(ctx, "access toggled", "action", string(res.Action))
	return res, nil
}

// DurationMinutes is the session length rounded to whole minutes, never
// negative.
func DurationMinutes(in, out time.Time) int {
	m := math.Round(out.Sub(in).Minutes())
	if m < 0 {
		return 0
	}
	return int(m)
}

// checkValidity rejects memberships that do not cover now.
func checkValidity(m types.Membership, now time.Time) error {
	deny := func(reason, msg string) error {
		return types.NewAppErrorWithDetails(types.ErrCodeAccessMembershipInactive, msg, nil,
			map[string]any{"reason": reason})
	}

	switch {
	case m.Status == types.MembershipPending || !m.HasWindow():
		return deny(ReasonPendingPayment, "no active membership: payment pending")
	case m.Status == types.MembershipCancelled:
		return deny(ReasonCancelled, "no active membership: membership cancelled")
	case now.Before(*m.ValidFrom):
		return deny(ReasonNotStarted, "no active membership: membership has not started yet")
	case now.After(*m.ValidUntil):
		return deny(ReasonExpired, "no active membership: membership expired")
	}
	return nil
}

func (g *Gate) checkWindow(ctx context.Context, planName string, now time.Time) error {
	if g.windows == nil || planName == "" {
		return nil
	}
	start, end, ok, err := g.windows.Window(ctx, planName)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if plans.WithinWindow(start, end, now.In(g.loc)) {
		return nil
	}
	window := plans.DescribeWindow(start, end)
	return types.NewAppErrorWithDetails(types.ErrCodeAccessOutsideWindow,
		fmt.Sprintf("access outside allowed hours (%s)", window), nil,
		map[string]any{"window": window})
}

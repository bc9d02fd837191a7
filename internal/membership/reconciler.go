// Package membership implements the payment-to-membership state machine.
//
// Every ingress path (webhook, browser confirmation, queue replay) funnels
// into Reconciler.Reconcile, which serializes on the payment's canonical
// provider id inside one store transaction. Duplicate and out-of-order
// gateway statuses are absorbed by compare-and-set on the stored payment
// status: approved, rejected and cancelled are terminal.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"coworkgate/internal/plans"
	"coworkgate/internal/telemetry"
	"coworkgate/internal/types"
)

// PlanResolver resolves the billing kind of a plan name.
type PlanResolver interface {
	Kind(ctx context.Context, name string, amount float64) (types.PlanType, error)
}

// Notifier receives post-commit membership events. Implementations must not
// block for long and never fail the caller.
type Notifier interface {
	PlanActivated(ctx context.Context, studentID, planName string, validUntil time.Time)
	PaymentFailed(ctx context.Context, studentID, planName string, status types.GatewayStatus)
}

// Input is one gateway observation of a payment.
type Input struct {
	ProviderID types.ProviderID
	Status     types.GatewayStatus
	// Amount is the gateway's transaction_amount; nil keeps the stored amount.
	Amount *float64
	// ExternalReference is "studentId|plan", used only when creating.
	ExternalReference string
	Source            types.ReconcileSource
	// CreateIfMissing creates the local payment for an approved status when
	// none matches ProviderID (confirmation path).
	CreateIfMissing bool
}

// Result describes what Reconcile did.
type Result struct {
	Payment *types.Payment
	// Applied is true when this call performed the state transition.
	Applied bool
	Outcome string
}

// Reconciler applies gateway payment statuses to payments and memberships.
type Reconciler struct {
	tx       types.TransactionManager
	repos    types.RepositoryRegistry
	plans    PlanResolver
	notifier Notifier
	metrics  telemetry.Collector
	loc      *time.Location
	clock    types.Clock
	logger   *slog.Logger

	group singleflight.Group
}

// NewReconciler creates a Reconciler. repos is used for reads outside the
// transaction; loc is the business time zone used for daily windows.
func NewReconciler(
	tx types.TransactionManager,
	repos types.RepositoryRegistry,
	resolver PlanResolver,
	notifier Notifier,
	metrics telemetry.Collector,
	loc *time.Location,
	logger *slog.Logger,
) *Reconciler {
	if metrics == nil {
		metrics = telemetry.Noop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tx:       tx,
		repos:    repos,
		plans:    resolver,
		notifier: notifier,
		metrics:  metrics,
		loc:      loc,
		clock:    time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source.
func (r *Reconciler) WithClock(clock types.Clock) *Reconciler {
	r.clock = clock
	return r
}

// reconcileTimeout bounds a shared reconciliation once it is detached from
// the caller that started it.
const reconcileTimeout = 30 * time.Second

// Reconcile applies in to the matching payment and its student. Concurrent
// calls for the same provider id, status, mode and source share one
// execution. The shared work does not inherit any single caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (*Result, error) {
	canonical := in.ProviderID.Canonical()
	if canonical.IsZero() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPaymentID, "provider payment id is required", nil)
	}

	key := fmt.Sprintf("%s|%s|%t|%s", canonical, in.Status, in.CreateIfMissing, in.Source)
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(detached, reconcileTimeout)
		defer cancel()
		return r.reconcileWithRetry(sctx, in)
	})

	var (
		v   any
		err error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case shared := <-ch:
		v, err = shared.Val, shared.Err
	}

	outcome := types.OutcomeFailed
	if res, ok := v.(*Result); ok && res != nil {
		outcome = res.Outcome
	} else if types.IsNotFound(err) {
		outcome = types.OutcomeNotFound
	}
	r.metrics.RecordReconcile(ctx, string(in.Source), outcome)
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// reconcileWithRetry retries once when a concurrent create won the insert
// race; the second attempt finds the row and takes the update path.
func (r *Reconciler) reconcileWithRetry(ctx context.Context, in Input) (*Result, error) {
	res, err := r.reconcile(ctx, in)
	if err != nil && in.CreateIfMissing && isCode(err, types.ErrCodeConflictPayment) {
		return r.reconcile(ctx, in)
	}
	return res, err
}

func isCode(err error, code types.ErrorCode) bool {
	appErr, ok := types.AsAppError(err)
	return ok && appErr.Code == code
}

// plan is the pre-transaction view used to resolve the plan kind.
type plan struct {
	studentID string
	name      string
	amount    float64
	kind      types.PlanType
	exists    bool
}

func (r *Reconciler) reconcile(ctx context.Context, in Input) (*Result, error) {
	logger := types.LoggerFromContext(ctx, r.logger).With(
		"provider_payment_id", in.ProviderID.String(),
		"gateway_status", string(in.Status),
		"source", string(in.Source),
	)

	class := classify(in.Status)
	if class == classOther {
		logger.InfoContext(ctx, "ignoring unhandled gateway status")
		return &Result{Outcome: types.OutcomeIgnored}, nil
	}

	pre, err := r.prepare(ctx, in, class)
	if err != nil {
		return nil, err
	}

	var (
		res    Result
		events []func(context.Context)
	)
	err = r.tx.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		events = nil
		pay, err := r.lockOrCreate(ctx, repos, in, pre)
		if err != nil {
			return err
		}
		res = Result{Payment: pay, Outcome: types.OutcomeNoop}

		switch class {
		case classApproved:
			return r.applyApproved(ctx, repos, in, pre, &res, &events)
		case classFailed:
			return r.applyFailed(ctx, repos, in, &res, &events)
		default:
			return r.applyPending(ctx, repos, &res)
		}
	})
	if err != nil {
		if !types.IsNotFound(err) && !types.IsConflict(err) {
			logger.ErrorContext(ctx, "reconciliation failed", "error", err)
		}
		return nil, err
	}

	for _, fire := range events {
		fire(ctx)
	}
	logger.InfoContext(ctx, "payment reconciled",
		"payment_id", res.Payment.ID,
		"student_id", res.Payment.StudentID,
		"outcome", res.Outcome,
	)
	return &res, nil
}

// prepare reads the payment (or, when creating, the reference and student)
// outside the transaction and resolves the plan kind through the catalog.
func (r *Reconciler) prepare(ctx context.Context, in Input, class statusClass) (plan, error) {
	var p plan

	existing, err := r.repos.Payments().GetByProviderID(ctx, in.ProviderID)
	switch {
	case err == nil:
		p = plan{studentID: existing.StudentID, name: existing.Plan, amount: existing.Amount, exists: true}
	case !types.IsNotFound(err):
		return p, err
	case !in.CreateIfMissing || class != classApproved:
		return p, types.NewAppError(types.ErrCodeNotFoundPayment,
			fmt.Sprintf("no local payment for provider id %s", in.ProviderID), err)
	default:
		ref := types.ParseExternalReference(in.ExternalReference)
		if ref.StudentID == "" {
			return p, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidReference,
				"external reference does not name a student", nil,
				map[string]any{"external_reference": in.ExternalReference})
		}
		student, err := r.repos.Students().GetByID(ctx, ref.StudentID)
		if err != nil {
			return p, err
		}
		name := ref.Plan
		if name == "" {
			name = student.Membership.PlanName
		}
		p = plan{studentID: student.ID, name: name}
	}

	if in.Amount != nil {
		p.amount = *in.Amount
	}
	if class == classApproved {
		kind, err := r.plans.Kind(ctx, p.name, p.amount)
		if err != nil {
			return p, err
		}
		p.kind = kind
	}
	return p, nil
}

func (r *Reconciler) lockOrCreate(ctx context.Context, repos types.RepositoryRegistry, in Input, pre plan) (*types.Payment, error) {
	pay, err := repos.Payments().LockByProviderID(ctx, in.ProviderID)
	if err == nil {
		return pay, nil
	}
	if !types.IsNotFound(err) || pre.exists {
		return nil, err
	}

	// Create path: prepare only returns a non-existing plan when creating.
	pay = &types.Payment{
		ID:         uuid.New().String(),
		StudentID:  pre.studentID,
		ProviderID: in.ProviderID,
		Amount:     pre.amount,
		Method:     types.MethodHostedCheckout,
		Date:       r.clock().UTC(),
		Plan:       pre.name,
		Status:     types.PaymentPending,
	}
	if err := repos.Payments().Create(ctx, pay); err != nil {
		return nil, err
	}
	return pay, nil
}

func (r *Reconciler) applyApproved(ctx context.Context, repos types.RepositoryRegistry, in Input, pre plan, res *Result, events *[]func(context.Context)) error {
	pay := res.Payment
	if pay.Status.IsTerminal() {
		// Approved+settled is the idempotent replay; rejected and cancelled
		// do not come back.
		return nil
	}

	student, err := repos.Students().LockByID(ctx, pay.StudentID)
	if err != nil {
		return err
	}

	kind := pre.kind
	if pay.Plan != pre.name {
		kind, err = r.kindInTx(ctx, repos, pay.Plan, pay.Amount)
		if err != nil {
			return err
		}
	}

	amount := pay.Amount
	if in.Amount != nil {
		amount = *in.Amount
	}
	from, until := plans.ValidityWindow(kind, r.clock().In(r.loc))

	pay.Settled = true
	pay.Amount = amount
	pay.Method = types.MethodHostedCheckout
	pay.Status = types.PaymentApproved
	if err := repos.Payments().Update(ctx, pay); err != nil {
		return err
	}

	m := types.Membership{
		PlanName:      pay.Plan,
		Status:        types.MembershipActive,
		ValidFrom:     &from,
		ValidUntil:    &until,
		AmountPaid:    amount,
		PaymentMethod: types.MethodHostedCheckout,
	}
	if err := repos.Students().UpdateMembership(ctx, student.ID, m, true); err != nil {
		return err
	}

	res.Applied = true
	res.Outcome = types.OutcomeApplied
	*events = append(*events, func(ctx context.Context) {
		if r.notifier != nil {
			r.notifier.PlanActivated(ctx, student.ID, pay.Plan, until)
		}
	})
	return nil
}

func (r *Reconciler) applyFailed(ctx context.Context, repos types.RepositoryRegistry, in Input, res *Result, events *[]func(context.Context)) error {
	pay := res.Payment
	if pay.Status.IsTerminal() {
		return nil
	}

	student, err := repos.Students().LockByID(ctx, pay.StudentID)
	if err != nil {
		return err
	}

	pay.Settled = false
	if !strings.HasSuffix(pay.Method, types.RejectedMethodSuffix) {
		pay.Method += types.RejectedMethodSuffix
	}
	pay.Status = localStatus(in.Status)
	if err := repos.Payments().Update(ctx, pay); err != nil {
		return err
	}

	m := student.Membership
	m.Status = types.MembershipCancelled
	if err := repos.Students().UpdateMembership(ctx, student.ID, m, false); err != nil {
		return err
	}

	res.Applied = true
	res.Outcome = types.OutcomeApplied
	*events = append(*events, func(ctx context.Context) {
		if r.notifier != nil {
			r.notifier.PaymentFailed(ctx, student.ID, pay.Plan, in.Status)
		}
	})
	return nil
}

func (r *Reconciler) applyPending(ctx context.Context, repos types.RepositoryRegistry, res *Result) error {
	pay := res.Payment
	if pay.Status == types.PaymentPending || pay.Status.IsTerminal() {
		return nil
	}
	pay.Status = types.PaymentPending
	if err := repos.Payments().Update(ctx, pay); err != nil {
		return err
	}
	res.Applied = true
	res.Outcome = types.OutcomeApplied
	return nil
}

// kindInTx classifies a plan through the transaction's repositories. Used
// only when the locked row names a different plan than the pre-read.
func (r *Reconciler) kindInTx(ctx context.Context, repos types.RepositoryRegistry, name string, amount float64) (types.PlanType, error) {
	p, err := repos.Plans().GetByName(ctx, name)
	if err == nil {
		return plans.Classify(*p), nil
	}
	if types.IsNotFound(err) {
		return plans.ClassifyPlan(name, amount), nil
	}
	return "", err
}

// Cancel moves an active or pending membership to cancelled.
func (r *Reconciler) Cancel(ctx context.Context, studentID string) (*types.Student, error) {
	return r.transition(ctx, studentID, "cancel", func(s *types.Student, effective types.MembershipStatus) (types.Membership, error) {
		if effective != types.MembershipActive && effective != types.MembershipPending {
			return types.Membership{}, conflict(effective, "cancel")
		}
		m := s.Membership
		m.Status = types.MembershipCancelled
		return m, nil
	})
}

// Reset returns a cancelled or expired membership to pending, clearing the
// plan, window and payment fields.
func (r *Reconciler) Reset(ctx context.Context, studentID string) (*types.Student, error) {
	return r.transition(ctx, studentID, "reset", func(_ *types.Student, effective types.MembershipStatus) (types.Membership, error) {
		if effective != types.MembershipCancelled && effective != types.MembershipExpired {
			return types.Membership{}, conflict(effective, "reset")
		}
		return types.Membership{Status: types.MembershipPending}, nil
	})
}

func conflict(status types.MembershipStatus, op string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeConflictMembership,
		fmt.Sprintf("cannot %s a membership in state %q", op, status), nil,
		map[string]any{"status": string(status)})
}

// transitionFunc computes the new membership. Both admin transitions leave
// the student inactive.
type transitionFunc func(s *types.Student, effective types.MembershipStatus) (types.Membership, error)

func (r *Reconciler) transition(ctx context.Context, studentID, op string, fn transitionFunc) (*types.Student, error) {
	var out *types.Student
	err := r.tx.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		s, err := repos.Students().LockByID(ctx, studentID)
		if err != nil {
			return err
		}
		m, err := fn(s, EffectiveStatus(s.Membership, r.clock()))
		if err != nil {
			return err
		}
		if err := repos.Students().UpdateMembership(ctx, s.ID, m, false); err != nil {
			return err
		}
		s.Membership, s.Active = m, false
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	actor, _ := types.GetActor(ctx)
	types.LoggerFromContext(ctx, r.logger).InfoContext(ctx, "membership transition",
		"op", op,
		"student_id", studentID,
		"status", string(out.Membership.Status),
		"actor", actor.ID,
	)
	return out, nil
}

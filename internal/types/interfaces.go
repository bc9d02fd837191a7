package types

import (
	"context"
	"time"
)

// StudentRepository is the data access contract for students and their
// embedded membership.
type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*Student, error)
	GetByAccessCode(ctx context.Context, code string) (*Student, error)

	// LockByID reads the student and, inside a transaction, holds a row lock
	// until commit.
	LockByID(ctx context.Context, id string) (*Student, error)

	// UpdateMembership overwrites the membership fields and the active flag.
	UpdateMembership(ctx context.Context, id string, m Membership, active bool) error

	// SetCheckedIn flips is_checked_in from expected to !expected. It returns
	// false without error when the stored value no longer equals expected.
	SetCheckedIn(ctx context.Context, id string, expected bool, at time.Time) (bool, error)
}

// PaymentRepository is the data access contract for payments.
type PaymentRepository interface {
	// GetByProviderID tries each of id.LookupKeys in order.
	GetByProviderID(ctx context.Context, id ProviderID) (*Payment, error)

	// LockByProviderID is GetByProviderID with a row lock held until commit.
	LockByProviderID(ctx context.Context, id ProviderID) (*Payment, error)

	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
}

// SessionRepository is the data access contract for check-in sessions.
type SessionRepository interface {
	// Open inserts a new open session. A second open session for the same
	// student is rejected with a conflict error.
	Open(ctx context.Context, s *Session) error
	FindOpen(ctx context.Context, studentID string) (*Session, error)
	Close(ctx context.Context, id string, at time.Time, durationMinutes int) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]Session, error)
}

// PlanRepository reads the plan catalog.
type PlanRepository interface {
	GetByName(ctx context.Context, name string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
}

// NotificationRepository persists student notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
}

// WebhookEventRepository archives raw gateway notifications.
type WebhookEventRepository interface {
	Record(ctx context.Context, e *WebhookEvent) error
}

// RepositoryRegistry provides access to all repository instances bound to
// the same connection or transaction.
type RepositoryRegistry interface {
	Students() StudentRepository
	Payments() PaymentRepository
	Sessions() SessionRepository
	Plans() PlanRepository
	Notifications() NotificationRepository
	WebhookEvents() WebhookEventRepository
}

// TransactionManager provides transactional execution across repositories.
// fn's repositories are bound to the transaction; returning an error rolls
// it back.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryRegistry) error) error
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coworkgate/internal/types"
)

// Registry binds every repository to one DBTX.
type Registry struct {
	students      *StudentRepository
	payments      *PaymentRepository
	sessions      *SessionRepository
	plans         *PlanRepository
	notifications *NotificationRepository
	webhookEvents *WebhookEventRepository
}

// NewRegistry creates repositories over db.
func NewRegistry(db DBTX) *Registry {
	return &Registry{
		students:      NewStudentRepository(db),
		payments:      NewPaymentRepository(db),
		sessions:      NewSessionRepository(db),
		plans:         NewPlanRepository(db),
		notifications: NewNotificationRepository(db),
		webhookEvents: NewWebhookEventRepository(db),
	}
}

func (r *Registry) Students() types.StudentRepository           { return r.students }
func (r *Registry) Payments() types.PaymentRepository           { return r.payments }
func (r *Registry) Sessions() types.SessionRepository           { return r.sessions }
func (r *Registry) Plans() types.PlanRepository                 { return r.plans }
func (r *Registry) Notifications() types.NotificationRepository { return r.notifications }
func (r *Registry) WebhookEvents() types.WebhookEventRepository { return r.webhookEvents }

// txBeginner is satisfied by *pgxpool.Pool.
type txBeginner interface {
	DBTX
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store is the pool-backed RepositoryRegistry and TransactionManager.
type Store struct {
	*Registry
	pool txBeginner
}

// NewStore wraps a pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return newStore(pool)
}

func newStore(pool txBeginner) *Store {
	return &Store{Registry: NewRegistry(pool), pool: pool}
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken through
// the Lock* methods serialize concurrent reconciliations and toggles.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, NewRegistry(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Ping satisfies the health probe contract.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

var (
	_ types.RepositoryRegistry = (*Store)(nil)
	_ types.TransactionManager = (*Store)(nil)
)

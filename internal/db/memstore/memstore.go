// Package memstore is an in-memory RepositoryRegistry and
// TransactionManager used for local runs (STORE_DRIVER=memory) and tests.
// Transactions are serialized by a single mutex and run against a copy of
// the data that replaces the live copy only on success.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"coworkgate/internal/types"
)

type state struct {
	students      map[string]types.Student
	payments      map[string]types.Payment
	sessions      map[string]types.Session
	plans         map[string]types.Plan
	notifications []types.Notification
	webhookEvents []types.WebhookEvent
}

func newState() *state {
	return &state{
		students: map[string]types.Student{},
		payments: map[string]types.Payment{},
		sessions: map[string]types.Session{},
		plans:    map[string]types.Plan{},
	}
}

func (s *state) clone() *state {
	return &state{
		students:      maps.Clone(s.students),
		payments:      maps.Clone(s.payments),
		sessions:      maps.Clone(s.sessions),
		plans:         maps.Clone(s.plans),
		notifications: append([]types.Notification(nil), s.notifications...),
		webhookEvents: append([]types.WebhookEvent(nil), s.webhookEvents...),
	}
}

// Store is the in-memory store. The zero value is not usable; call New.
type Store struct {
	mu   sync.Mutex
	data *state
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

// RunInTx runs fn against a private copy of the data and publishes the copy
// when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "transaction cancelled", err)
	}
	work := s.data.clone()
	if err := fn(ctx, &registry{st: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) live() *registry {
	return &registry{st: nil, store: s}
}

func (s *Store) Students() types.StudentRepository           { return s.live() }
func (s *Store) Payments() types.PaymentRepository           { return paymentRepo{s.live()} }
func (s *Store) Sessions() types.SessionRepository           { return sessionRepo{s.live()} }
func (s *Store) Plans() types.PlanRepository                 { return planRepo{s.live()} }
func (s *Store) Notifications() types.NotificationRepository { return notificationRepo{s.live()} }
func (s *Store) WebhookEvents() types.WebhookEventRepository { return webhookRepo{s.live()} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// PutStudent inserts or replaces a student.
func (s *Store) PutStudent(st types.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	st.UpdatedAt = st.CreatedAt
	s.data.students[st.ID] = st
}

// PutPlan inserts or replaces a plan.
func (s *Store) PutPlan(p types.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.plans[p.ID] = p
}

// PutPayment inserts or replaces a payment without uniqueness checks.
func (s *Store) PutPayment(p types.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.payments[p.ID] = p
}

// AllSessions returns every session ordered by check-in time.
func (s *Store) AllSessions() []types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Session, 0, len(s.data.sessions))
	for _, v := range s.data.sessions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInAt.Before(out[j].CheckInAt) })
	return out
}

// AllPayments returns every payment.
func (s *Store) AllPayments() []types.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Payment, 0, len(s.data.payments))
	for _, v := range s.data.payments {
		out = append(out, v)
	}
	return out
}

// Notifications written so far.
func (s *Store) NotificationLog() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Notification(nil), s.data.notifications...)
}

// WebhookEventLog returns the archived notifications.
func (s *Store) WebhookEventLog() []types.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.WebhookEvent(nil), s.data.webhookEvents...)
}

// registry is bound either to a transaction copy (st set) or to the live
// data of store, in which case each call takes the store mutex.
type registry struct {
	st    *state
	store *Store
}

func (r *registry) Students() types.StudentRepository           { return r }
func (r *registry) Payments() types.PaymentRepository           { return paymentRepo{r} }
func (r *registry) Sessions() types.SessionRepository           { return sessionRepo{r} }
func (r *registry) Plans() types.PlanRepository                 { return planRepo{r} }
func (r *registry) Notifications() types.NotificationRepository { return notificationRepo{r} }
func (r *registry) WebhookEvents() types.WebhookEventRepository { return webhookRepo{r} }

// with runs fn against the bound state.
func (r *registry) with(fn func(st *state) error) error {
	if r.st != nil {
		return fn(r.st)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

func notFound(code types.ErrorCode, what string) error {
	return types.NewAppError(code, what+" not found", nil)
}

// --- students ---

func (r *registry) GetByID(_ context.Context, id string) (*types.Student, error) {
	var out types.Student
	err := r.with(func(st *state) error {
		s, ok := st.students[id]
		if !ok {
			return notFound(types.ErrCodeNotFoundStudent, "student")
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *registry) GetByAccessCode(_ context.Context, code string) (*types.Student, error) {
	var out types.Student
	err := r.with(func(st *state) error {
		for _, s := range st.students {
			if s.AccessCode == code {
				out = s
				return nil
			}
		}
		return notFound(types.ErrCodeNotFoundStudent, "student")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *registry) LockByID(ctx context.Context, id string) (*types.Student, error) {
	return r.GetByID(ctx, id)
}

func (r *registry) UpdateMembership(_ context.Context, id string, m types.Membership, active bool) error {
	return r.with(func(st *state) error {
		s, ok := st.students[id]
		if !ok {
			return notFound(types.ErrCodeNotFoundStudent, "student")
		}
		s.Membership = m
		s.Active = active
		s.UpdatedAt = time.Now()
		st.students[id] = s
		return nil
	})
}

func (r *registry) SetCheckedIn(_ context.Context, id string, expected bool, at time.Time) (bool, error) {
	var flipped bool
	err := r.with(func(st *state) error {
		s, ok := st.students[id]
		if !ok || s.IsCheckedIn != expected {
			return nil
		}
		s.IsCheckedIn = !expected
		if s.IsCheckedIn {
			t := at
			s.LastCheckInAt = &t
		}
		s.UpdatedAt = at
		st.students[id] = s
		flipped = true
		return nil
	})
	return flipped, err
}

// --- payments ---

type paymentRepo struct{ r *registry }

func findPayment(st *state, id types.ProviderID) (types.Payment, bool) {
	for _, key := range id.LookupKeys() {
		for _, p := range st.payments {
			if p.ProviderID == key {
				return p, true
			}
		}
	}
	return types.Payment{}, false
}

func (p paymentRepo) GetByProviderID(_ context.Context, id types.ProviderID) (*types.Payment, error) {
	var out types.Payment
	err := p.r.with(func(st *state) error {
		found, ok := findPayment(st, id)
		if !ok {
			return notFound(types.ErrCodeNotFoundPayment, "payment")
		}
		out = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p paymentRepo) LockByProviderID(ctx context.Context, id types.ProviderID) (*types.Payment, error) {
	return p.GetByProviderID(ctx, id)
}

func (p paymentRepo) Create(_ context.Context, pay *types.Payment) error {
	return p.r.with(func(st *state) error {
		if _, exists := st.payments[pay.ID]; exists {
			return types.NewAppError(types.ErrCodeConflictPayment, "payment id already exists", nil)
		}
		stored := *pay
		stored.ProviderID = pay.ProviderID.Canonical()
		if !stored.ProviderID.IsZero() {
			if _, dup := findPayment(st, stored.ProviderID); dup {
				return types.NewAppError(types.ErrCodeConflictPayment, "payment already recorded for this provider id", nil)
			}
		}
		now := time.Now()
		stored.CreatedAt, stored.UpdatedAt = now, now
		st.payments[stored.ID] = stored
		return nil
	})
}

func (p paymentRepo) Update(_ context.Context, pay *types.Payment) error {
	return p.r.with(func(st *state) error {
		cur, ok := st.payments[pay.ID]
		if !ok {
			return notFound(types.ErrCodeNotFoundPayment, "payment")
		}
		cur.Amount = pay.Amount
		cur.Method = pay.Method
		cur.Settled = pay.Settled
		cur.Plan = pay.Plan
		cur.Status = pay.Status
		cur.UpdatedAt = time.Now()
		st.payments[pay.ID] = cur
		return nil
	})
}

// --- sessions ---

type sessionRepo struct{ r *registry }

func (s sessionRepo) Open(_ context.Context, sess *types.Session) error {
	return s.r.with(func(st *state) error {
		for _, existing := range st.sessions {
			if existing.StudentID == sess.StudentID && existing.IsOpen() {
				return types.NewAppError(types.ErrCodeConflictOpenSession, "student already has an open session", nil)
			}
		}
		st.sessions[sess.ID] = types.Session{ID: sess.ID, StudentID: sess.StudentID, CheckInAt: sess.CheckInAt}
		return nil
	})
}

func (s sessionRepo) FindOpen(_ context.Context, studentID string) (*types.Session, error) {
	var out *types.Session
	err := s.r.with(func(st *state) error {
		for _, existing := range st.sessions {
			if existing.StudentID == studentID && existing.IsOpen() {
				if out == nil || existing.CheckInAt.After(out.CheckInAt) {
					e := existing
					out = &e
				}
			}
		}
		if out == nil {
			return notFound(types.ErrCodeNotFoundSession, "open session")
		}
		return nil
	})
	return out, err
}

func (s sessionRepo) Close(_ context.Context, id string, at time.Time, durationMinutes int) error {
	return s.r.with(func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok || !sess.IsOpen() {
			return notFound(types.ErrCodeNotFoundSession, "open session")
		}
		t, d := at, durationMinutes
		sess.CheckOutAt, sess.DurationMinutes = &t, &d
		st.sessions[id] = sess
		return nil
	})
}

func (s sessionRepo) ListByStudent(_ context.Context, studentID string, limit int) ([]types.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []types.Session
	err := s.r.with(func(st *state) error {
		for _, sess := range st.sessions {
			if sess.StudentID == studentID {
				out = append(out, sess)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInAt.After(out[j].CheckInAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// --- plans ---

type planRepo struct{ r *registry }

func (p planRepo) GetByName(_ context.Context, name string) (*types.Plan, error) {
	var out *types.Plan
	err := p.r.with(func(st *state) error {
		for _, plan := range st.plans {
			if strings.EqualFold(plan.Name, strings.TrimSpace(name)) {
				pl := plan
				out = &pl
				return nil
			}
		}
		return notFound(types.ErrCodeNotFoundPlan, "plan")
	})
	return out, err
}

func (p planRepo) List(_ context.Context) ([]types.Plan, error) {
	var out []types.Plan
	err := p.r.with(func(st *state) error {
		for _, plan := range st.plans {
			out = append(out, plan)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// --- notifications and webhook events ---

type notificationRepo struct{ r *registry }

func (n notificationRepo) Create(_ context.Context, note *types.Notification) error {
	return n.r.with(func(st *state) error {
		st.notifications = append(st.notifications, *note)
		return nil
	})
}

type webhookRepo struct{ r *registry }

func (w webhookRepo) Record(_ context.Context, e *types.WebhookEvent) error {
	return w.r.with(func(st *state) error {
		st.webhookEvents = append(st.webhookEvents, *e)
		return nil
	})
}

var (
	_ types.RepositoryRegistry = (*Store)(nil)
	_ types.TransactionManager = (*Store)(nil)
)

package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworkgate/internal/db/memstore"
	"coworkgate/internal/plans"
	"coworkgate/internal/types"
)

var loc = time.FixedZone("ART", -3*60*60)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, loc)
}

func activeMembership() types.Membership {
	from := time.Date(2026, 3, 1, 9, 0, 0, 0, loc)
	until := from.AddDate(0, 0, 30)
	return types.Membership{
		PlanName:   "Mensual",
		Status:     types.MembershipActive,
		ValidFrom:  &from,
		ValidUntil: &until,
		AmountPaid: 45000,
	}
}

func newGate(t *testing.T, repos types.RepositoryRegistry, store *memstore.Store, clock *testClock) *Gate {
	t.Helper()
	catalog := plans.NewCatalog(store.Plans(), 8, time.Minute, nil)
	return NewGate(store, repos, catalog, nil, loc, nil).WithClock(clock.Now)
}

func setup(t *testing.T) (*memstore.Store, *Gate, *testClock) {
	t.Helper()
	store := memstore.New()
	store.PutPlan(types.Plan{ID: "pl-m", Name: "Mensual", Price: 45000, StartHour: "08:00", EndHour: "21:30"})
	store.PutStudent(types.Student{ID: "stu-1", FullName: "Ana Gómez", AccessCode: "4821", Active: true, Membership: activeMembership()})
	clock := &testClock{now: at(10, 0)}
	return store, newGate(t, store, store, clock), clock
}

func TestToggle_SessionRoundTrip(t *testing.T) {
	store, gate, clock := setup(t)
	ctx := context.Background()
	t0 := at(10, 0)

	in, err := gate.Toggle(ctx, "4821")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckIn, in.Action)
	require.NotNil(t, in.Session)
	assert.True(t, in.Session.IsOpen())
	assert.True(t, in.Student.IsCheckedIn)

	clock.Set(t0.Add(47 * time.Minute))
	out, err := gate.Toggle(ctx, "4821")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckOut, out.Action)
	require.NotNil(t, out.Session)
	require.NotNil(t, out.Session.DurationMinutes)
	assert.Equal(t, 47, *out.Session.DurationMinutes)
	assert.Equal(t, in.Session.ID, out.Session.ID)

	s, err := store.Students().GetByID(ctx, "stu-1")
	require.NoError(t, err)
	assert.False(t, s.IsCheckedIn)
	require.NotNil(t, s.LastCheckInAt)
	assert.True(t, s.LastCheckInAt.Equal(t0))

	_, err = store.Sessions().FindOpen(ctx, "stu-1")
	assert.True(t, types.IsNotFound(err), "no open session may remain")
}

// barrierStudents holds every caller of GetByAccessCode until all parties
// have read, so each observes the same pre-toggle state.
type barrierStudents struct {
	types.StudentRepository
	wg *sync.WaitGroup
}

func (b *barrierStudents) GetByAccessCode(ctx context.Context, code string) (*types.Student, error) {
	s, err := b.StudentRepository.GetByAccessCode(ctx, code)
	b.wg.Done()
	b.wg.Wait()
	return s, err
}

type barrierRegistry struct {
	types.RepositoryRegistry
	students *barrierStudents
}

func (b barrierRegistry) Students() types.StudentRepository { return b.students }

func TestToggle_ConcurrentCheckInsOpenOneSession(t *testing.T) {
	store, _, clock := setup(t)
	const callers = 2

	var barrier sync.WaitGroup
	barrier.Add(callers)
	repos := barrierRegistry{
		RepositoryRegistry: store,
		students:           &barrierStudents{StudentRepository: store.Students(), wg: &barrier},
	}
	gate := newGate(t, repos, store, clock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Toggle(context.Background(), "4821")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case types.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	open := 0
	for _, s := range store.AllSessions() {
		if s.IsOpen() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestToggle_AccessWindow(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"one minute early", at(7, 59), false},
		{"opening minute", at(8, 0), true},
		{"closing minute inclusive", at(21, 30), true},
		{"one minute late", at(21, 31), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, gate, clock := setup(t)
			clock.Set(tt.now)

			_, err := gate.Toggle(context.Background(), "4821")
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			appErr, ok := types.AsAppError(err)
			require.True(t, ok, "expected AppError, got %v", err)
			assert.Equal(t, types.ErrCodeAccessOutsideWindow, appErr.Code)
			assert.Contains(t, appErr.Message, "08:00–21:30")
			assert.Equal(t, 403, appErr.HTTPStatus())
		})
	}
}

func TestToggle_WindowUsesBusinessTimeZone(t *testing.T) {
	_, gate, clock := setup(t)
	// 11:00 UTC is 08:00 in Buenos Aires.
	clock.Set(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))

	_, err := gate.Toggle(context.Background(), "4821")
	require.NoError(t, err)
}

func TestToggle_MembershipValidity(t *testing.T) {
	future := at(10, 0).AddDate(0, 0, 2)
	later := future.AddDate(0, 0, 30)
	past := at(10, 0).AddDate(0, 0, -40)
	expired := past.AddDate(0, 0, 30)

	tests := []struct {
		name   string
		m      types.Membership
		reason string
	}{
		{"pending payment", types.Membership{PlanName: "Mensual", Status: types.MembershipPending}, ReasonPendingPayment},
		{"active without dates", types.Membership{PlanName: "Mensual", Status: types.MembershipActive}, ReasonPendingPayment},
		{"cancelled", func() types.Membership { m := activeMembership(); m.Status = types.MembershipCancelled; return m }(), ReasonCancelled},
		{"not started", types.Membership{PlanName: "Mensual", Status: types.MembershipActive, ValidFrom: &future, ValidUntil: &later}, ReasonNotStarted},
		{"expired", types.Membership{PlanName: "Mensual", Status: types.MembershipActive, ValidFrom: &past, ValidUntil: &expired}, ReasonExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, gate, _ := setup(t)
			store.PutStudent(types.Student{ID: "stu-1", AccessCode: "4821", Membership: tt.m})

			_, err := gate.Toggle(context.Background(), "4821")
			appErr, ok := types.AsAppError(err)
			require.True(t, ok, "expected AppError, got %v", err)
			assert.Equal(t, types.ErrCodeAccessMembershipInactive, appErr.Code)
			assert.Equal(t, tt.reason, appErr.Details["reason"])

			assert.Empty(t, store.AllSessions(), "rejections must not write")
			s, err := store.Students().GetByID(context.Background(), "stu-1")
			require.NoError(t, err)
			assert.False(t, s.IsCheckedIn)
		})
	}
}

func TestToggle_UnknownCode(t *testing.T) {
	_, gate, _ := setup(t)

	_, err := gate.Toggle(context.Background(), "0000")
	assert.True(t, types.IsNotFound(err))

	_, err = gate.Toggle(context.Background(), "")
	assert.True(t, types.IsValidation(err))
}

func TestToggle_CheckOutWithoutOpenSession(t *testing.T) {
	store, gate, _ := setup(t)
	store.PutStudent(types.Student{ID: "stu-1", AccessCode: "4821", IsCheckedIn: true, Membership: activeMembership()})

	res, err := gate.Toggle(context.Background(), "4821")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckOut, res.Action)
	assert.Nil(t, res.Session)
	assert.False(t, res.Student.IsCheckedIn)
}

func TestToggle_PlanWithoutWindowSkipsCheck(t *testing.T) {
	store, gate, clock := setup(t)
	store.PutPlan(types.Plan{ID: "pl-m", Name: "Mensual", Price: 45000})
	clock.Set(at(3, 0))

	_, err := gate.Toggle(context.Background(), "4821")
	require.NoError(t, err)
}

func TestDurationMinutes(t *testing.T) {
	t0 := at(10, 0)
	assert.Equal(t, 47, DurationMinutes(t0, t0.Add(47*time.Minute)))
	assert.Equal(t, 2, DurationMinutes(t0, t0.Add(90*time.Second)))
	assert.Equal(t, 0, DurationMinutes(t0, t0.Add(20*time.Second)))
	assert.Equal(t, 0, DurationMinutes(t0, t0.Add(-5*time.Minute)))
}

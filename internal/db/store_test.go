package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coworkgate/internal/types"
)

// fakeTx routes statements to a mockDBTX and records commit/rollback.
type fakeTx struct {
	pgx.Tx
	db         *mockDBTX
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	*mockDBTX
	tx       *fakeTx
	beginErr error
	opts     pgx.TxOptions
}

func (p *fakePool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.opts = opts
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

func newFakePool() *fakePool {
	return &fakePool{mockDBTX: new(mockDBTX), tx: &fakeTx{db: new(mockDBTX)}}
}

func TestStore_RunInTxCommits(t *testing.T) {
	pool := newFakePool()
	ctx := context.Background()
	pool.tx.db.On("Exec", ctx, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := newStore(pool).RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		return repos.Notifications().Create(ctx, &types.Notification{ID: "n1", StudentID: "stu-1"})
	})

	require.NoError(t, err)
	assert.True(t, pool.tx.committed)
	assert.False(t, pool.tx.rolledBack)
	assert.Equal(t, pgx.ReadCommitted, pool.opts.IsoLevel)
	pool.tx.db.AssertExpectations(t)
	pool.mockDBTX.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_RunInTxRollsBackOnError(t *testing.T) {
	pool := newFakePool()
	boom := types.NewAppError(types.ErrCodeConflictCheckIn, "lost race", nil)

	err := newStore(pool).RunInTx(context.Background(), func(context.Context, types.RepositoryRegistry) error {
		return boom
	})

	assert.Same(t, boom, err)
	assert.False(t, pool.tx.committed)
	assert.True(t, pool.tx.rolledBack)
}

func TestStore_RunInTxBeginAndCommitFailures(t *testing.T) {
	pool := newFakePool()
	pool.beginErr = errors.New("too many connections")
	err := newStore(pool).RunInTx(context.Background(), func(context.Context, types.RepositoryRegistry) error { return nil })
	appErr, ok := types.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)

	pool = newFakePool()
	pool.tx.commitErr = errors.New("serialization failure")
	err = newStore(pool).RunInTx(context.Background(), func(context.Context, types.RepositoryRegistry) error { return nil })
	appErr, ok = types.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestWebhookEventRepository_RecordCompressesPayload(t *testing.T) {
	m := new(mockDBTX)
	ctx := context.Background()
	payload := []byte(`{"type":"payment","data":{"id":"123456"}}`)

	var stored []byte
	m.On("Exec", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(2).([]any)[4].([]byte) }).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := NewWebhookEventRepository(m).Record(ctx, &types.WebhookEvent{
		ID:                "evt-1",
		Provider:          "mercadopago",
		Topic:             "payment",
		ProviderPaymentID: "123456",
		Payload:           payload,
		ReceivedAt:        time.Now(),
	})
	require.NoError(t, err)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(stored, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

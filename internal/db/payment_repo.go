package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"coworkgate/internal/types"
)

// PaymentRepository provides data access for the payments table.
// mercado_pago_id is stored in canonical form and is unique.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a PaymentRepository over db.
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, student_id, mercado_pago_id, amount, method, payment_date, settled,
	plan, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var (
		p          types.Payment
		providerID *string
	)
	err := row.Scan(
		&p.ID,
		&p.StudentID,
		&providerID,
		&p.Amount,
		&p.Method,
		&p.Date,
		&p.Settled,
		&p.Plan,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ProviderID = types.ProviderID(derefString(providerID))
	return &p, nil
}

// byProviderID matches any lookup form, preferring the canonical one.
const byProviderID = `SELECT ` + paymentColumns + `
	FROM payments
	WHERE mercado_pago_id = ANY($1::text[])
	ORDER BY (mercado_pago_id = $2) DESC, created_at
	LIMIT 1`

func lookupArgs(id types.ProviderID) ([]string, string) {
	keys := id.LookupKeys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out, out[0]
}

// GetByProviderID finds a payment by the canonical id, falling back to the
// raw form for rows written before canonicalization.
func (r *PaymentRepository) GetByProviderID(ctx context.Context, id types.ProviderID) (*types.Payment, error) {
	keys, canonical := lookupArgs(id)
	p, err := scanPayment(r.db.QueryRow(ctx, byProviderID, keys, canonical))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundPayment, "payment")
	}
	return p, nil
}

// LockByProviderID is GetByProviderID with FOR UPDATE.
func (r *PaymentRepository) LockByProviderID(ctx context.Context, id types.ProviderID) (*types.Payment, error) {
	keys, canonical := lookupArgs(id)
	p, err := scanPayment(r.db.QueryRow(ctx, byProviderID+` FOR UPDATE`, keys, canonical))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundPayment, "payment")
	}
	return p, nil
}

// Create inserts p. A duplicate provider id yields conflict_payment_exists.
func (r *PaymentRepository) Create(ctx context.Context, p *types.Payment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		p.ID,
		p.StudentID,
		nilIfEmpty(p.ProviderID.Canonical().String()),
		p.Amount,
		p.Method,
		p.Date,
		p.Settled,
		p.Plan,
		p.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictPayment, "payment already recorded for this provider id", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create payment", err)
	}
	return nil
}

// Update writes the mutable payment fields.
func (r *PaymentRepository) Update(ctx context.Context, p *types.Payment) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET
			amount = $2,
			method = $3,
			settled = $4,
			plan = $5,
			status = $6,
			updated_at = NOW()
		 WHERE id = $1`,
		p.ID,
		p.Amount,
		p.Method,
		p.Settled,
		p.Plan,
		p.Status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update payment", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPayment, "payment not found", nil)
	}
	return nil
}

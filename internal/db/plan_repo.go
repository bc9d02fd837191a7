package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"coworkgate/internal/types"
)

// PlanRepository reads the plans table.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a PlanRepository over db.
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, price, start_hour, end_hour, days, plan_type`

func scanPlan(row pgx.Row) (*types.Plan, error) {
	var (
		p                   types.Plan
		start, end, planTyp *string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &start, &end, &p.Days, &planTyp); err != nil {
		return nil, err
	}
	p.StartHour = derefString(start)
	p.EndHour = derefString(end)
	p.Type = types.PlanType(derefString(planTyp))
	return &p, nil
}

// GetByName matches the plan name case-insensitively.
func (r *PlanRepository) GetByName(ctx context.Context, name string) (*types.Plan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE lower(name) = lower($1)`, name))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundPlan, "plan")
	}
	return p, nil
}

// List returns every plan ordered by name.
func (r *PlanRepository) List(ctx context.Context) ([]types.Plan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY name`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plans", err)
	}
	defer rows.Close()

	var out []types.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate plans", err)
	}
	return out, nil
}

// Package plans classifies membership plans into billing kinds, parses their
// daily access windows and computes membership validity windows.
package plans

import (
	"strings"
	"time"

	"coworkgate/internal/types"
)

// DailyPriceCeiling is the highest price at which an unnamed plan is still
// treated as a day pass.
const DailyPriceCeiling = 8000

var dailyMarkers = []string{"diario", "día", "day"}

// ClassifyPlan derives the billing kind from a plan's name and price. A plan
// is daily when its name mentions a day pass or its price is at most
// DailyPriceCeiling.
func ClassifyPlan(name string, price float64) types.PlanType {
	lower := strings.ToLower(name)
	for _, marker := range dailyMarkers {
		if strings.Contains(lower, marker) {
			return types.PlanDaily
		}
	}
	if price <= DailyPriceCeiling {
		return types.PlanDaily
	}
	return types.PlanMonthly
}

// Classify returns the plan's explicit type when set and falls back to
// ClassifyPlan otherwise.
func Classify(p types.Plan) types.PlanType {
	switch p.Type {
	case types.PlanDaily, types.PlanMonthly:
		return p.Type
	}
	return ClassifyPlan(p.Name, p.Price)
}

// ValidityWindow returns the membership window starting at now. A daily
// pass ends at 23:59:59.999 of now's calendar day in now's location; a
// monthly plan lasts 30 days. until is always after from: a daily pass
// bought in the final millisecond of the day runs to the end of the next.
func ValidityWindow(kind types.PlanType, now time.Time) (from, until time.Time) {
	if kind == types.PlanDaily {
		y, m, d := now.Date()
		until = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), now.Location())
		if !until.After(now) {
			until = time.Date(y, m, d+1, 23, 59, 59, int(999*time.Millisecond), now.Location())
		}
		return now, until
	}
	return now, now.AddDate(0, 0, 30)
}

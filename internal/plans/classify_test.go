package plans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coworkgate/internal/types"
)

func TestClassifyPlan(t *testing.T) {
	tests := []struct {
		name  string
		plan  string
		price float64
		want  types.PlanType
	}{
		{"daily by name", "Pase Diario", 5000, types.PlanDaily},
		{"monthly by price", "Plan Full", 15000, types.PlanMonthly},
		{"boundary is daily", "Plan X", 8000, types.PlanDaily},
		{"just above boundary", "Plan X", 8001, types.PlanMonthly},
		{"accented marker", "Pase por DÍA", 20000, types.PlanDaily},
		{"english marker", "Day Pass", 12000, types.PlanDaily},
		{"cheap monthly misread", "Mensual Estudiante", 7500, types.PlanDaily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPlan(tt.plan, tt.price))
		})
	}
}

func TestClassifyPrefersExplicitType(t *testing.T) {
	p := types.Plan{Name: "Mensual Estudiante", Price: 7500, Type: types.PlanMonthly}
	assert.Equal(t, types.PlanMonthly, Classify(p))

	p.Type = ""
	assert.Equal(t, types.PlanDaily, Classify(p))
}

func TestValidityWindow(t *testing.T) {
	t.Run("daily ends same calendar day", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
		from, until := ValidityWindow(types.PlanDaily, now)

		assert.Equal(t, now, from)
		assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999_000_000, time.UTC), until)
	})

	t.Run("monthly lasts thirty days", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		from, until := ValidityWindow(types.PlanMonthly, now)

		assert.Equal(t, now, from)
		assert.Equal(t, time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC), until)
	})

	t.Run("daily uses the location of now", func(t *testing.T) {
		loc := time.FixedZone("ART", -3*60*60)
		// 01:30 UTC on the 2nd is still the 1st in ART.
		now := time.Date(2024, 3, 2, 1, 30, 0, 0, time.UTC).In(loc)
		_, until := ValidityWindow(types.PlanDaily, now)

		assert.Equal(t, 1, until.Day())
		assert.Equal(t, loc, until.Location())
		assert.True(t, until.After(now))
	})

	t.Run("daily bought in the last millisecond rolls to the next day", func(t *testing.T) {
		for _, nsec := range []int{999_000_000, 999_500_000, 999_999_999} {
			now := time.Date(2024, 3, 1, 23, 59, 59, nsec, time.UTC)
			from, until := ValidityWindow(types.PlanDaily, now)

			assert.Equal(t, now, from)
			assert.True(t, until.After(from), "until %v must follow from %v", until, from)
			assert.Equal(t, time.Date(2024, 3, 2, 23, 59, 59, 999_000_000, time.UTC), until)
		}
	})

	t.Run("daily just before the cutoff keeps the same day", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 23, 59, 59, 998_999_999, time.UTC)
		_, until := ValidityWindow(types.PlanDaily, now)

		assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999_000_000, time.UTC), until)
	})
}

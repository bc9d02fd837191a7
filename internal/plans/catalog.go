package plans

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"coworkgate/internal/types"
)

const (
	defaultCatalogSize = 128
	defaultCatalogTTL  = 5 * time.Minute
)

// Catalog resolves plans by name through a size- and age-bounded cache in
// front of the plans table. It is the single place that decides a plan's
// billing kind and access window.
type Catalog struct {
	repo types.PlanRepository
	// A nil plan records a known miss.
	cache  *expirable.LRU[string, *types.Plan]
	logger *slog.Logger
}

// NewCatalog builds a Catalog. Non-positive size or ttl fall back to
// defaults.
func NewCatalog(repo types.PlanRepository, size int, ttl time.Duration, logger *slog.Logger) *Catalog {
	if size <= 0 {
		size = defaultCatalogSize
	}
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		repo:   repo,
		cache:  expirable.NewLRU[string, *types.Plan](size, nil, ttl),
		logger: logger,
	}
}

func cacheKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup returns the plan with the given name (case-insensitive). Unknown
// plans yield a not_found_plan error.
func (c *Catalog) Lookup(ctx context.Context, name string) (*types.Plan, error) {
	key := cacheKey(name)
	if key == "" {
		return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan name is empty", nil)
	}

	if cached, ok := c.cache.Get(key); ok {
		if cached == nil {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, fmt.Sprintf("plan %q not found", name), nil)
		}
		p := *cached
		return &p, nil
	}

	plan, err := c.repo.GetByName(ctx, name)
	if err != nil {
		if types.IsNotFound(err) {
			c.cache.Add(key, nil)
		}
		return nil, err
	}
	c.cache.Add(key, plan)
	p := *plan
	return &p, nil
}

// Kind resolves the billing kind for a plan name. Plans missing from the
// catalog are classified from the name and the amount paid.
func (c *Catalog) Kind(ctx context.Context, name string, amount float64) (types.PlanType, error) {
	plan, err := c.Lookup(ctx, name)
	switch {
	case err == nil:
		return Classify(*plan), nil
	case types.IsNotFound(err):
		kind := ClassifyPlan(name, amount)
		c.logger.DebugContext(ctx, "plan not in catalog, classified by name and amount",
			"plan", name, "amount", amount, "kind", kind)
		return kind, nil
	default:
		return "", err
	}
}

// Window returns the access window for a plan name. ok is false when the
// plan is unknown or has no parseable window.
func (c *Catalog) Window(ctx context.Context, name string) (start, end int, ok bool, err error) {
	plan, err := c.Lookup(ctx, name)
	if err != nil {
		if types.IsNotFound(err) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	start, end, ok = AccessWindow(*plan)
	return start, end, ok, nil
}

// Invalidate drops a single plan, or the whole cache when name is empty.
func (c *Catalog) Invalidate(name string) {
	if name == "" {
		c.cache.Purge()
		return
	}
	c.cache.Remove(cacheKey(name))
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/slug"
)

// Catalog manages plans and their versions and answers "what does this plan
// cost right now".
type Catalog struct {
	store   PlanStore
	current *expirable.LRU[uuid.UUID, PlanVersion]
	now     func() time.Time
	audit   AuditLog
	log     *slog.Logger
}

type CatalogOption func(*Catalog)

func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

func WithCatalogAudit(a AuditLog) CatalogOption {
	return func(c *Catalog) {
		if a != nil {
			c.audit = a
		}
	}
}

func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// DefaultCurrentVersionTTL bounds how long a catalog keeps serving a cached
// current version. CreateVersion only clears the cache of the catalog that ran
// it; other processes pick the new version up once their entry expires.
const DefaultCurrentVersionTTL = time.Minute

// WithCurrentVersionCache sets the size and lifetime of the per-plan current
// version cache.
func WithCurrentVersionCache(size int, ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		c.current = expirable.NewLRU[uuid.UUID, PlanVersion](size, nil, ttl)
	}
}

func NewCatalog(store PlanStore, opts ...CatalogOption) *Catalog {
	if store == nil {
		panic("billing: PlanStore is required")
	}
	c := &Catalog{
		store: store,
		now:   time.Now,
		audit: noopAudit{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.current == nil {
		c.current = expirable.NewLRU[uuid.UUID, PlanVersion](256, nil, DefaultCurrentVersionTTL)
	}
	return c
}

// PlanWithVersion is a plan together with its current version.
type PlanWithVersion struct {
	Plan    Plan        `json:"plan"`
	Version PlanVersion `json:"version"`
}

// ListPlans returns active plans that have a current version.
func (c *Catalog) ListPlans(ctx context.Context) ([]PlanWithVersion, error) {
	plans, err := c.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PlanWithVersion, 0, len(plans))
	for _, p := range plans {
		if !p.Active {
			continue
		}
		v, err := c.CurrentVersion(ctx, p.ID)
		if errors.Is(err, ErrPlanUnavailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, PlanWithVersion{Plan: p, Version: *v})
	}
	return out, nil
}

func (c *Catalog) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return c.store.GetPlan(ctx, id)
}

func (c *Catalog) GetPlanBySlug(ctx context.Context, slug string) (*Plan, error) {
	return c.store.GetPlanBySlug(ctx, slug)
}

func (c *Catalog) GetVersion(ctx context.Context, id uuid.UUID) (*PlanVersion, error) {
	return c.store.GetVersion(ctx, id)
}

func (c *Catalog) ListVersions(ctx context.Context, planID uuid.UUID) ([]PlanVersion, error) {
	if _, err := c.store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return c.store.ListVersions(ctx, planID)
}

// SavePlan creates or updates a plan. Only admins and the system may do so.
func (c *Catalog) SavePlan(ctx context.Context, actor Actor, p *Plan) error {
	if !actor.IsSystem() && !actor.Admin {
		return ErrForbidden
	}
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	if p.Slug == "" {
		p.Slug = slug.Make(p.Name, slug.MaxLength)
	}
	if err := p.validate(); err != nil {
		return err
	}
	if !slug.Valid(p.Slug) {
		return fmt.Errorf("%w: slug %q must be lowercase letters and digits separated by hyphens", ErrInvalidPlan, p.Slug)
	}
	now := c.now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := c.store.SavePlan(ctx, p); err != nil {
		return err
	}
	_ = c.audit.Log(ctx, actor.String(), "plan.save", audit.NewTarget(audit.TargetPlan, p.ID), map[string]any{
		"slug":   p.Slug,
		"active": p.Active,
	})
	return nil
}

// CreateVersion adds a version to a plan. See VersionAttributes for labels;
// an active version replaces the plan's previous active version.
func (c *Catalog) CreateVersion(ctx context.Context, actor Actor, planID uuid.UUID, attrs VersionAttributes) (*PlanVersion, error) {
	if !actor.IsSystem() && !actor.Admin {
		return nil, ErrForbidden
	}
	if err := attrs.validate(); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	v, err := c.store.CreateVersion(ctx, planID, func(existing []PlanVersion) (*PlanVersion, error) {
		return attrs.build(planID, existing, now)
	})
	c.current.Remove(planID)
	if err != nil {
		_ = c.audit.LogError(ctx, actor.String(), "plan_version.create", audit.NewTarget(audit.TargetPlan, planID), err, nil)
		return nil, err
	}

	_ = c.audit.Log(ctx, actor.String(), "plan_version.create", audit.NewTarget(audit.TargetPlanVersion, v.ID), map[string]any{
		"plan_id":       planID.String(),
		"version":       v.Version,
		"monthly_price": v.MonthlyPrice.String(),
		"yearly_price":  v.YearlyPrice.String(),
		"active":        v.Active,
	})
	c.log.InfoContext(ctx, "plan version created",
		logger.PlanID(planID),
		logger.PlanVersionID(v.ID),
		slog.String("version", v.Version),
	)
	return v, nil
}

// CurrentVersion returns the plan's active version valid now, or
// ErrPlanUnavailable.
func (c *Catalog) CurrentVersion(ctx context.Context, planID uuid.UUID) (*PlanVersion, error) {
	now := c.now()
	if v, ok := c.current.Get(planID); ok && v.Active && v.ValidAt(now) {
		return &v, nil
	}
	v, err := c.CurrentVersionAt(ctx, planID, now)
	if err != nil {
		return nil, err
	}
	c.current.Add(planID, *v)
	return v, nil
}

// CurrentVersionAt resolves the current version at an arbitrary time without
// touching the cache.
func (c *Catalog) CurrentVersionAt(ctx context.Context, planID uuid.UUID, at time.Time) (*PlanVersion, error) {
	versions, err := c.store.ListVersions(ctx, planID)
	if err != nil {
		return nil, err
	}
	v, ok := currentVersion(versions, at)
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", ErrPlanUnavailable, planID)
	}
	return &v, nil
}

// VersionByPriceID maps a provider price to the plan version and interval it
// belongs to.
func (c *Catalog) VersionByPriceID(ctx context.Context, priceID string) (*PlanVersion, BillingInterval, error) {
	v, err := c.store.FindVersionByPriceID(ctx, priceID)
	if err != nil {
		return nil, "", err
	}
	if v.ProviderYearlyPriceID == priceID {
		return v, IntervalYearly, nil
	}
	return v, IntervalMonthly, nil
}

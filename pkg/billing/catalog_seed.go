package billing

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML catalog format:
//
//	plans:
//	  - name: Pro
//	    slug: pro
//	    trial_days: 14
//	    limits: {lists: 50, urls_per_list: 1000, collaborators: 5}
//	    version:
//	      monthly_price: "9.99"
//	      yearly_price: "99.00"
//	      monthly_price_id: pri_01...
type seedFile struct {
	Plans []seedPlan `yaml:"plans"`
}

type seedPlan struct {
	Name        string      `yaml:"name"`
	Slug        string      `yaml:"slug"`
	Description string      `yaml:"description"`
	Featured    bool        `yaml:"featured"`
	Inactive    bool        `yaml:"inactive"`
	TrialDays   int         `yaml:"trial_days"`
	Features    []string    `yaml:"features"`
	Limits      Limits      `yaml:"limits"`
	Version     seedVersion `yaml:"version"`
}

type seedVersion struct {
	MonthlyPrice   string `yaml:"monthly_price"`
	YearlyPrice    string `yaml:"yearly_price"`
	Currency       string `yaml:"currency"`
	MonthlyPriceID string `yaml:"monthly_price_id"`
	YearlyPriceID  string `yaml:"yearly_price_id"`
}

// SeedFromYAML creates missing plans from a YAML catalog and gives every plan
// without versions an initial active version. Existing plans keep their
// versions; only their descriptive fields and limits are refreshed. It
// returns the number of versions created.
func (c *Catalog) SeedFromYAML(ctx context.Context, r io.Reader) (int, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("decode plan catalog: %w", err)
	}

	created := 0
	for _, sp := range file.Plans {
		plan, err := c.store.GetPlanBySlug(ctx, sp.Slug)
		switch {
		case errors.Is(err, ErrPlanNotFound):
			plan = &Plan{}
		case err != nil:
			return created, err
		}
		plan.Name = sp.Name
		plan.Slug = sp.Slug
		plan.Description = sp.Description
		plan.Featured = sp.Featured
		plan.Active = !sp.Inactive
		plan.TrialDays = sp.TrialDays
		plan.Features = sp.Features
		plan.Limits = sp.Limits
		if err := c.SavePlan(ctx, SystemActor, plan); err != nil {
			return created, fmt.Errorf("seed plan %q: %w", sp.Slug, err)
		}

		versions, err := c.store.ListVersions(ctx, plan.ID)
		if err != nil {
			return created, err
		}
		if len(versions) > 0 {
			continue
		}

		attrs, err := sp.Version.attributes(sp.Features)
		if err != nil {
			return created, fmt.Errorf("seed plan %q: %w", sp.Slug, err)
		}
		if _, err := c.CreateVersion(ctx, SystemActor, plan.ID, attrs); err != nil {
			return created, fmt.Errorf("seed plan %q: %w", sp.Slug, err)
		}
		created++
	}
	return created, nil
}

func (sv seedVersion) attributes(features []string) (VersionAttributes, error) {
	monthly, err := parsePrice(sv.MonthlyPrice)
	if err != nil {
		return VersionAttributes{}, err
	}
	yearly, err := parsePrice(sv.YearlyPrice)
	if err != nil {
		return VersionAttributes{}, err
	}
	return VersionAttributes{
		MonthlyPrice:           monthly,
		YearlyPrice:            yearly,
		Currency:               sv.Currency,
		Features:               features,
		Active:                 true,
		ProviderMonthlyPriceID: sv.MonthlyPriceID,
		ProviderYearlyPriceID:  sv.YearlyPriceID,
	}, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return d, nil
}

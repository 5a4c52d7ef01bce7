package billing

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a named tier. Prices live on its versions.
type Plan struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name" validate:"required,max=100"`
	Slug        string    `json:"slug" validate:"required,max=64,lowercase"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	Featured    bool      `json:"featured"`
	Features    []string  `json:"features,omitempty" validate:"dive,required"`
	Limits      Limits    `json:"limits"`
	TrialDays   int       `json:"trial_days" validate:"gte=0,lte=365"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p Plan) HasTrial() bool { return p.TrialDays > 0 }

// PlanVersion is one immutable price point of a plan.
type PlanVersion struct {
	ID           uuid.UUID       `json:"id"`
	PlanID       uuid.UUID       `json:"plan_id"`
	Version      string          `json:"version"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	YearlyPrice  decimal.Decimal `json:"yearly_price"`
	Currency     string          `json:"currency"`
	Features     []string        `json:"features,omitempty"`
	Active       bool            `json:"active"`
	ValidFrom    *time.Time      `json:"valid_from,omitempty"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`

	ProviderMonthlyPriceID string `json:"provider_monthly_price_id,omitempty"`
	ProviderYearlyPriceID  string `json:"provider_yearly_price_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (v PlanVersion) Price(i BillingInterval) decimal.Decimal {
	if i == IntervalYearly {
		return v.YearlyPrice
	}
	return v.MonthlyPrice
}

func (v PlanVersion) ProviderPriceID(i BillingInterval) string {
	if i == IntervalYearly {
		return v.ProviderYearlyPriceID
	}
	return v.ProviderMonthlyPriceID
}

func (v PlanVersion) IsFree() bool {
	return v.MonthlyPrice.IsZero() && v.YearlyPrice.IsZero()
}

// ValidAt reports whether t falls inside the version's validity window.
// Missing bounds are open.
func (v PlanVersion) ValidAt(t time.Time) bool {
	if v.ValidFrom != nil && t.Before(*v.ValidFrom) {
		return false
	}
	if v.ValidUntil != nil && !t.Before(*v.ValidUntil) {
		return false
	}
	return true
}

// currentVersion picks the active version valid at now, preferring the most
// recent ValidFrom. A nil ValidFrom sorts as the oldest.
func currentVersion(versions []PlanVersion, now time.Time) (PlanVersion, bool) {
	var candidates []PlanVersion
	for _, v := range versions {
		if v.Active && v.ValidAt(now) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return PlanVersion{}, false
	}
	return slices.MaxFunc(candidates, func(a, b PlanVersion) int {
		return cmp.Compare(validFromUnix(a), validFromUnix(b))
	}), true
}

func validFromUnix(v PlanVersion) int64 {
	if v.ValidFrom == nil {
		return -1 << 62
	}
	return v.ValidFrom.UnixNano()
}

// VersionAttributes describe a new plan version. An empty Version label is
// filled in with the next patch number.
type VersionAttributes struct {
	Version      string          `json:"version"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	YearlyPrice  decimal.Decimal `json:"yearly_price"`
	Currency     string          `json:"currency" validate:"omitempty,iso4217"`
	Features     []string        `json:"features" validate:"dive,required"`
	Active       bool            `json:"active"`
	ValidFrom    *time.Time      `json:"valid_from"`
	ValidUntil   *time.Time      `json:"valid_until"`

	ProviderMonthlyPriceID string `json:"provider_monthly_price_id" validate:"max=255"`
	ProviderYearlyPriceID  string `json:"provider_yearly_price_id" validate:"max=255"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (a VersionAttributes) validate() error {
	if err := validate.Struct(a); err != nil {
		return errors.Join(ErrInvalidVersion, err)
	}
	if a.MonthlyPrice.IsNegative() || a.YearlyPrice.IsNegative() {
		return ErrNegativePrice
	}
	if a.ValidFrom != nil && a.ValidUntil != nil && !a.ValidUntil.After(*a.ValidFrom) {
		return ErrInvalidValidityWindow
	}
	if a.Version != "" {
		if _, err := ParseVersion(a.Version); err != nil {
			return err
		}
	}
	return nil
}

// build turns the attributes into a version of planID given the plan's
// existing versions.
func (a VersionAttributes) build(planID uuid.UUID, existing []PlanVersion, now time.Time) (*PlanVersion, error) {
	label := a.Version
	if label == "" {
		label = nextVersionLabel(existing)
	} else {
		parsed, _ := ParseVersion(label)
		label = parsed.String()
		for _, v := range existing {
			if v.Version == label {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateVersionLabel, label)
			}
		}
	}

	code := strings.ToUpper(a.Currency)
	if code == "" {
		code = DefaultCurrency
	}

	return &PlanVersion{
		ID:                     uuid.New(),
		PlanID:                 planID,
		Version:                label,
		MonthlyPrice:           a.MonthlyPrice,
		YearlyPrice:            a.YearlyPrice,
		Currency:               code,
		Features:               slices.Clone(a.Features),
		Active:                 a.Active,
		ValidFrom:              a.ValidFrom,
		ValidUntil:             a.ValidUntil,
		ProviderMonthlyPriceID: a.ProviderMonthlyPriceID,
		ProviderYearlyPriceID:  a.ProviderYearlyPriceID,
		CreatedAt:              now,
	}, nil
}

func (p Plan) validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Join(ErrInvalidPlan, err)
	}
	return nil
}

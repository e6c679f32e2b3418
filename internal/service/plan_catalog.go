package service

import (
	"errors"
	"strings"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/model"
)

var ErrUnknownPlan = errors.New("套餐不存在")

// Plan 某渠道下 (计费周期, 档位) 对应的套餐
type Plan struct {
	Provider string
	Period   string
	Tier     string
	Name     string
	PriceID  string
	Credits  int64
}

func (p Plan) Recurring() bool {
	return p.Period != model.PeriodOneTime
}

type PlanCatalog struct {
	billing config.BillingConfig
}

func NewPlanCatalog(billing config.BillingConfig) *PlanCatalog {
	return &PlanCatalog{billing: billing}
}

// Lookup 周期和档位大小写不敏感
func (c *PlanCatalog) Lookup(provider, period, tier string) (Plan, error) {
	canonical, ok := NormalizePeriod(period)
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	tier = strings.ToLower(strings.TrimSpace(tier))

	pc, ok := c.billing.Plan(provider, canonical, tier)
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return Plan{
		Provider: provider,
		Period:   canonical,
		Tier:     tier,
		Name:     pc.Name,
		PriceID:  pc.PriceID,
		Credits:  pc.Credits,
	}, nil
}

// NormalizePeriod monthly / yearly / oneTime
func NormalizePeriod(period string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "monthly", "month":
		return model.PeriodMonthly, true
	case "yearly", "year", "annual":
		return model.PeriodYearly, true
	case "onetime", "one_time", "one-time":
		return model.PeriodOneTime, true
	}
	return "", false
}

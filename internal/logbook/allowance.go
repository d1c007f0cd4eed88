package logbook

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DailyAllowance is the per-diem paid when an allowance rule matches.
var DailyAllowance = decimal.RequireFromString("445.00")

// AllowanceRule grants Amount for flights of Registration. An empty Destination matches any
// destination; otherwise the rule only applies when the flight lands at Destination.
type AllowanceRule struct {
	Registration string          `json:"registration"`
	Destination  string          `json:"destination,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

// AllowanceRules is a jurisdiction's rule table.
type AllowanceRules []AllowanceRule

// DefaultAllowanceRules returns the operator's current table: the long-range jet earns the
// allowance on every flight, the King Air only when it overnights in Cancun.
func DefaultAllowanceRules() AllowanceRules {
	return AllowanceRules{
		{Registration: "XA-LRJ", Amount: DailyAllowance},
		{Registration: "XA-CHR", Destination: "MMUN", Amount: DailyAllowance},
	}
}

// Allowance returns the amount owed for a flight of registration into destination.
// Registration+destination rules take precedence over registration-only rules; no match
// yields zero.
func (r AllowanceRules) Allowance(registration, destination string) decimal.Decimal {
	reg := strings.ToUpper(strings.TrimSpace(registration))
	dest := strings.ToUpper(strings.TrimSpace(destination))

	var flat *AllowanceRule
	for i := range r {
		rule := &r[i]
		if !strings.EqualFold(rule.Registration, reg) {
			continue
		}
		if rule.Destination == "" {
			if flat == nil {
				flat = rule
			}
			continue
		}
		if strings.EqualFold(rule.Destination, dest) {
			return rule.Amount
		}
	}
	if flat != nil {
		return flat.Amount
	}
	return decimal.Zero
}

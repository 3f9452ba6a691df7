// Package pricing computes the trusted cost of a payable.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true,
	"KMF": true, "KRW": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

var threeDecimal = map[string]bool{
	"BHD": true, "JOD": true, "KWD": true, "OMR": true, "TND": true,
}

// Exponent returns the number of minor-unit digits of an ISO 4217 currency.
func Exponent(currency string) int32 {
	c := strings.ToUpper(strings.TrimSpace(currency))
	switch {
	case zeroDecimal[c]:
		return 0
	case threeDecimal[c]:
		return 3
	default:
		return 2
	}
}

// Policy is the fee and rounding policy applied to every payable.
type Policy struct {
	surcharges map[string]decimal.Decimal
	fallback   decimal.Decimal
}

// NewPolicy returns a policy with a default surcharge percentage applied to
// any gateway without its own entry.
func NewPolicy(defaultPercent float64) *Policy {
	return &Policy{
		surcharges: map[string]decimal.Decimal{},
		fallback:   decimal.NewFromFloat(defaultPercent),
	}
}

// WithSurcharge sets the surcharge percentage for one gateway.
func (p *Policy) WithSurcharge(gateway string, percent decimal.Decimal) *Policy {
	p.surcharges[strings.ToLower(gateway)] = percent
	return p
}

// Surcharge returns the percentage added on top of the payable amount.
func (p *Policy) Surcharge(gateway string) decimal.Decimal {
	if s, ok := p.surcharges[strings.ToLower(gateway)]; ok {
		return s
	}
	return p.fallback
}

// RoundCost applies surcharge (in percent) to amount and rounds half away
// from zero to the currency's minor unit.
func (p *Policy) RoundCost(amount decimal.Decimal, currency string, surcharge decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(surcharge.Div(hundred))
	return amount.Mul(factor).Round(Exponent(currency))
}

// Cost is Surcharge and RoundCost in one call.
func (p *Policy) Cost(gateway string, amount decimal.Decimal, currency string) decimal.Decimal {
	return p.RoundCost(amount, currency, p.Surcharge(gateway))
}

// Format renders cost with exactly the currency's minor-unit digits.
func Format(cost decimal.Decimal, currency string) string {
	return cost.StringFixed(Exponent(currency))
}

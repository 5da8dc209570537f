package bridge

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeePrecision is the number of decimal places kept in a fee. Extra digits
// are truncated, never rounded up.
const FeePrecision = 8

var hundred = decimal.NewFromInt(100)

func parseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Reason: fmt.Sprintf("%q is not a decimal amount", amount)}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Reason: fmt.Sprintf("%q is negative", amount)}
	}
	return d, nil
}

// fee is amount*feePercent/100 truncated to FeePrecision and bounded by
// amount*maxFeePercent/100.
func fee(amount decimal.Decimal, l limits) decimal.Decimal {
	f := amount.Mul(l.fee).Div(hundred).Truncate(FeePrecision)
	ceiling := amount.Mul(l.maxFee).Div(hundred)
	if f.GreaterThan(ceiling) {
		f = ceiling.Truncate(FeePrecision)
	}
	return f
}

// CalculateBridgeFee is a pure function of the amount and the route's fee
// percentage.
func (r Routes) CalculateBridgeFee(amount string, d Direction) (string, error) {
	route, err := r.Lookup(d)
	if err != nil {
		return "", err
	}
	a, err := parseAmount(amount)
	if err != nil {
		return "", err
	}
	l, err := route.limits()
	if err != nil {
		return "", err
	}
	return fee(a, l).String(), nil
}

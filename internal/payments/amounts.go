package payments

import (
	"github.com/shopspring/decimal"

	"github.com/memberdesk/backend/pkg/enums"
)

// Processing-fee model: the provider keeps a fixed 20p plus 1% of the gross
// charge, so a fee-covering charge is grossed up by the inverse.
var (
	feeFixed = decimal.NewFromFloat(0.20)
	feeRate  = decimal.NewFromFloat(0.99)
	hundred  = decimal.NewFromInt(100)
	twelve   = decimal.NewFromInt(12)
)

// ActualAmount converts a monthly-equivalent amount to the amount charged per
// period (annual contributions charge twelve months at once).
func ActualAmount(monthlyAmount float64, period enums.ContributionPeriod) float64 {
	amount := decimal.NewFromFloat(monthlyAmount)
	if period == enums.ContributionPeriodAnnually {
		amount = amount.Mul(twelve)
	}
	f, _ := amount.Round(2).Float64()
	return f
}

// ChargeableAmount returns the per-period charge in minor currency units,
// grossed up to cover processing fees when payFee is set.
func ChargeableAmount(monthlyAmount float64, period enums.ContributionPeriod, payFee bool) int {
	amount := decimal.NewFromFloat(ActualAmount(monthlyAmount, period))
	if payFee {
		amount = amount.Div(feeRate).Add(feeFixed)
	}
	return int(amount.Mul(hundred).Round(0).IntPart())
}

// MonthlyAmount converts a realized per-period charge (major units) back to
// the monthly-equivalent net amount, undoing the fee gross-up when payFee is
// set.
func MonthlyAmount(chargedAmount float64, period enums.ContributionPeriod, payFee bool) float64 {
	amount := decimal.NewFromFloat(chargedAmount)
	if period == enums.ContributionPeriodAnnually {
		amount = amount.Div(twelve)
	}
	if payFee {
		amount = amount.Sub(feeFixed).Mul(feeRate)
	}
	f, _ := amount.Round(2).Float64()
	return f
}

// ProrationAmount is the one-off charge in minor units for moving from
// oldMonthly to newMonthly with monthsLeft until renewal.
func ProrationAmount(oldMonthly, newMonthly float64, monthsLeft int) int {
	if monthsLeft <= 0 {
		return 0
	}
	diff := decimal.NewFromFloat(newMonthly).Sub(decimal.NewFromFloat(oldMonthly))
	if diff.Sign() <= 0 {
		return 0
	}
	return int(diff.Mul(decimal.NewFromInt(int64(monthsLeft))).Mul(hundred).Round(0).IntPart())
}

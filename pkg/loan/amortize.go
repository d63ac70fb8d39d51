package loan

import (
	"github.com/shopspring/decimal"

	"github.com/anishbk/corebank/pkg/models"
	"github.com/anishbk/corebank/pkg/money"
)

var (
	one         = decimal.NewFromInt(1)
	basisPoints = decimal.NewFromInt(1200) // percent to monthly rate
)

// ComputeEMI returns the equated monthly installment for a loan:
//
//	EMI = P x r x (1+r)^n / ((1+r)^n - 1)
//
// with r the monthly rate (annual percent / 100 / 12) and n the term in
// months. A zero rate degenerates to principal / term. The result is
// rounded to two decimals, half away from zero. Returns zero when the term
// is not positive.
func ComputeEMI(principal money.Money, annualRatePercent money.Money, termMonths int) money.Money {
	if termMonths <= 0 {
		return money.Zero
	}
	if annualRatePercent.IsZero() {
		return principal.DivInt(int64(termMonths))
	}

	r := annualRatePercent.Decimal().Div(basisPoints)
	compounded := one.Add(r).Pow(decimal.NewFromInt(int64(termMonths)))
	emi := principal.Decimal().Mul(r).Mul(compounded).Div(compounded.Sub(one))
	return money.New(emi).Round2()
}

// TotalPayable is the full amount owed over the loan's life: EMI x term.
func TotalPayable(emi money.Money, termMonths int) money.Money {
	if termMonths <= 0 {
		return money.Zero
	}
	return emi.MulInt(int64(termMonths))
}

// TotalPaid sums the given payment amounts. Order-independent.
func TotalPaid(payments []*models.LoanPayment) money.Money {
	total := money.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// RemainingAmount is max(0, totalPayable - totalPaid); never negative.
func RemainingAmount(totalPayable, totalPaid money.Money) money.Money {
	remaining := totalPayable.Sub(totalPaid)
	if remaining.IsNegative() {
		return money.Zero
	}
	return remaining
}

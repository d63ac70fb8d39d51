// Package money provides exact fixed-point currency arithmetic.
// Amounts are backed by arbitrary-precision decimals; display and
// persistence use two fractional digits, rounded half away from zero.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// maxIntegerDigits caps the whole-unit part of an amount. Together with the
// two fractional display digits this matches a NUMERIC(15,2) column.
const maxIntegerDigits = 13

var maxAbs = decimal.New(1, maxIntegerDigits)

// ErrInvalidAmount is returned when an amount is non-positive where
// positivity is required, or exceeds the supported number of digits.
var ErrInvalidAmount = errors.New("invalid amount")

// Money is an exact currency amount. The zero value is zero money.
type Money struct {
	d decimal.Decimal
}

var Zero = Money{}

// New wraps a decimal value as Money without validation.
func New(d decimal.Decimal) Money {
	return Money{d: d}
}

// FromInt constructs Money from a whole number of currency units.
func FromInt(n int64) Money {
	return Money{d: decimal.NewFromInt(n)}
}

// FromString parses a decimal string such as "1234.56".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	m := Money{d: d}
	if m.overflows() {
		return Zero, fmt.Errorf("%w: %q exceeds %d integer digits", ErrInvalidAmount, s, maxIntegerDigits)
	}
	return m, nil
}

// RequirePositive validates an amount used for a deposit, withdrawal,
// transfer or loan payment.
func RequirePositive(m Money) error {
	if !m.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, m)
	}
	if m.overflows() {
		return fmt.Errorf("%w: %s exceeds %d integer digits", ErrInvalidAmount, m, maxIntegerDigits)
	}
	return nil
}

func (m Money) overflows() bool {
	return m.d.Abs().Cmp(maxAbs) >= 0
}

// Decimal exposes the underlying decimal for computations that need
// intermediate precision beyond two digits, such as amortization.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// MulInt multiplies by a scalar, e.g. EMI by term months.
func (m Money) MulInt(n int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(n))}
}

// DivInt divides by a scalar and rounds to two decimals.
func (m Money) DivInt(n int64) Money {
	return Money{d: m.d.Div(decimal.NewFromInt(n)).Round(2)}
}

// Cmp returns -1, 0 or 1 when m is less than, equal to or greater than o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }

// Round2 rounds to two decimals, half away from zero.
func (m Money) Round2() Money { return Money{d: m.d.Round(2)} }

// String renders the amount with exactly two fractional digits.
func (m Money) String() string { return m.d.StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, b)
	}
	m.d = d
	if m.overflows() {
		return fmt.Errorf("%w: %s exceeds %d integer digits", ErrInvalidAmount, m, maxIntegerDigits)
	}
	return nil
}

// Value stores the amount as TEXT so no precision is lost.
func (m Money) Value() (driver.Value, error) {
	return m.d.String(), nil
}

func (m *Money) Scan(src interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	m.d = d
	return nil
}

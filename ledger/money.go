/*
Package ledger provides the core deferred-revenue recognition engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking money
  that has been collected but not yet earned. Gift cards, customer deposits,
  invoice installments, and advance online orders all share the same
  lifecycle: cash comes in, a liability is recorded, and the liability is
  later recognized as sales or refunded.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: A fixed-point currency amount with exact arithmetic

DESIGN PRINCIPLES:
  1. Exactness: All arithmetic is integer-cent exact. No float64 anywhere.
  2. Immutability: Transactions are never modified once applied.
  3. Atomicity: Apply either commits sections + balance together, or nothing.
  4. Auditability: Every balance change is traceable to a transaction id.

USAGE:
  price, err := ledger.ParseMoney("50.00")
  tip := ledger.Cents(150)
  total := price.Add(tip)

SEE ALSO:
  - label.go: Line labels and report sections
  - transaction.go: Business event types
  - engine.go: The recognition engine itself
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount (two decimal places)
// =============================================================================

// Scale is the number of decimal places every Money value carries.
// Amounts that cannot be represented exactly at this scale are rejected
// at construction time, never rounded.
const Scale = 2

// Money is a signed fixed-point currency amount. The zero value is $0.00.
//
// INVARIANT: the wrapped decimal always has an exponent >= -Scale, so
// arithmetic over Money values can never produce sub-cent residue.
type Money struct {
	value decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{value: decimal.Zero}

// Cents builds a Money from an integer number of cents.
func Cents(n int64) Money {
	return Money{value: decimal.New(n, -Scale)}
}

// ParseMoney parses a decimal string such as "50.00" or "-12.5".
// Returns a PrecisionError if the input carries more than Scale decimal
// places or is not a valid decimal at all.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, &PrecisionError{Input: s, Reason: "not a decimal"}
	}
	if d.Exponent() < -Scale {
		// Trailing zeros are fine ("1.500"); real sub-cent residue is not.
		if !d.Equal(d.Truncate(Scale)) {
			return Zero, &PrecisionError{Input: s, Reason: fmt.Sprintf("more than %d decimal places", Scale)}
		}
	}
	return Money{value: d.Truncate(Scale)}, nil
}

// MustMoney is ParseMoney for literals in tests and scenario data.
// Panics on malformed input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Arithmetic. All operations are exact at Scale.

func (m Money) Add(o Money) Money { return Money{value: m.value.Add(o.value)} }
func (m Money) Sub(o Money) Money { return Money{value: m.value.Sub(o.value)} }
func (m Money) Neg() Money        { return Money{value: m.value.Neg()} }

// Comparison.

func (m Money) Equal(o Money) bool       { return m.value.Equal(o.value) }
func (m Money) GreaterThan(o Money) bool { return m.value.GreaterThan(o.value) }
func (m Money) LessThan(o Money) bool    { return m.value.LessThan(o.value) }
func (m Money) IsZero() bool             { return m.value.IsZero() }
func (m Money) IsNegative() bool         { return m.value.IsNegative() }
func (m Money) IsPositive() bool         { return m.value.IsPositive() }

// Cents returns the amount as an integer number of cents.
func (m Money) Cents() int64 {
	return m.value.Mul(decimal.New(1, Scale)).IntPart()
}

// Decimal exposes the underlying decimal for persistence layers.
func (m Money) Decimal() decimal.Decimal { return m.value }

// String renders with exactly Scale decimal places: "50.00", "-12.50".
func (m Money) String() string { return m.value.StringFixed(Scale) }

// MarshalJSON renders Money as a JSON string to keep exactness on the wire.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts the string form produced by MarshalJSON.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

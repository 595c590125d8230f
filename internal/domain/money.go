package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fraction digits every Money value carries.
const MoneyScale = 2

// Money is a fixed-point amount in the store currency. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

var (
	Zero    = Money{}
	hundred = decimal.NewFromInt(100)
)

func NewMoneyFromInt(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// NewMoneyFromDecimal rounds d half-up to two fraction digits.
func NewMoneyFromDecimal(d decimal.Decimal) Money {
	return Money{d: d.Round(MoneyScale)}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse money %q: %w", s, err)
	}
	return NewMoneyFromDecimal(d), nil
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

func (m Money) Sub(o Money) Money {
	return Money{d: m.d.Sub(o.d)}
}

// SubClamped subtracts o and floors the result at zero.
func (m Money) SubClamped(o Money) Money {
	r := m.d.Sub(o.d)
	if r.IsNegative() {
		return Zero
	}
	return Money{d: r}
}

func (m Money) MulInt(n int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(n)))}
}

// MulPercent returns m * pct / 100 rounded half-up to two fraction digits.
func (m Money) MulPercent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(hundred).Round(MoneyScale)}
}

func MinMoney(a, b Money) Money {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

func MaxMoney(a, b Money) Money {
	if a.d.GreaterThan(b.d) {
		return a
	}
	return b
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.d.Cmp(o.d)
}

func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }

func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// String renders the amount with exactly two fraction digits, e.g. "185.00".
func (m Money) String() string {
	return m.d.StringFixed(MoneyScale)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both the string form and a bare JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Zero
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal money: %w", err)
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores money as a NUMERIC-compatible string.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	*m = NewMoneyFromDecimal(d)
	return nil
}

package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_StringHasTwoFractionDigits(t *testing.T) {
	assert.Equal(t, "185.00", NewMoneyFromInt(185).String())
	assert.Equal(t, "0.00", Zero.String())
	assert.Equal(t, "19.90", MustParseMoney("19.9").String())
}

func TestMoney_ParseRoundsHalfUp(t *testing.T) {
	assert.Equal(t, "10.01", MustParseMoney("10.005").String())
	assert.Equal(t, "10.00", MustParseMoney("10.004").String())
}

func TestMoney_ParseInvalid(t *testing.T) {
	_, err := ParseMoney("ten")
	assert.Error(t, err)
}

func TestMoney_RepeatedAdditionIsExact(t *testing.T) {
	sum := Zero
	for i := 0; i < 1000; i++ {
		sum = sum.Add(MustParseMoney("0.10"))
	}
	assert.True(t, sum.Equal(NewMoneyFromInt(100)))
}

func TestMoney_SubClamped(t *testing.T) {
	a := MustParseMoney("10.00")
	b := MustParseMoney("25.50")

	assert.Equal(t, "-15.50", a.Sub(b).String())
	assert.True(t, a.SubClamped(b).IsZero())
	assert.Equal(t, "15.50", b.SubClamped(a).String())
}

func TestMoney_MulPercent(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		pct    string
		want   string
	}{
		{"ten percent", "400.00", "10", "40.00"},
		{"vat", "400.00", "15", "60.00"},
		{"half cent rounds up", "0.05", "50", "0.03"},
		{"fractional percent", "199.99", "12.5", "25.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParseMoney(tt.amount).MulPercent(decimal.RequireFromString(tt.pct))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMoney_MulIntMinMax(t *testing.T) {
	price := MustParseMoney("12.34")
	assert.Equal(t, "37.02", price.MulInt(3).String())

	assert.Equal(t, price, MinMoney(price, NewMoneyFromInt(20)))
	assert.Equal(t, "20.00", MaxMoney(price, NewMoneyFromInt(20)).String())
	assert.Equal(t, -1, price.Cmp(NewMoneyFromInt(20)))
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	in := MustParseMoney("185.10")
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `"185.10"`, string(data))

	var out Money
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Equal(out))

	require.NoError(t, json.Unmarshal([]byte(`42.5`), &out))
	assert.Equal(t, "42.50", out.String())
}

func TestMoney_Scan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan([]byte("99.95")))
	assert.Equal(t, "99.95", m.String())

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "99.95", v)
}

package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	t.Run("accepts ISO codes", func(t *testing.T) {
		c, err := ParseCurrency("SAR")
		require.NoError(t, err)
		assert.Equal(t, Currency("SAR"), c)
	})

	t.Run("normalises case and whitespace", func(t *testing.T) {
		c, err := ParseCurrency(" usd ")
		require.NoError(t, err)
		assert.Equal(t, Currency("USD"), c)
	})

	t.Run("rejects unknown codes", func(t *testing.T) {
		_, err := ParseCurrency("XYZQ")
		assert.Error(t, err)
		_, err = ParseCurrency("")
		assert.Error(t, err)
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney(decimal.NewFromInt(1000), "SAR")
	b := MustMoney(decimal.NewFromInt(250), "SAR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(decimal.NewFromInt(1250)))

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.True(t, diff.Amount().Equal(decimal.NewFromInt(750)))

	_, err = a.Add(MustMoney(decimal.NewFromInt(1), "USD"))
	assert.Error(t, err)
}

func TestMoney_RoundsToScale(t *testing.T) {
	m := MustMoney(decimal.RequireFromString("10.123456"), "SAR")
	assert.Equal(t, "10.1235", m.Amount().String())
	assert.Equal(t, "10.12 SAR", m.String())
}

func TestMoney_JSON(t *testing.T) {
	m := MustMoney(decimal.RequireFromString("500.5"), "SAR")
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"500.5","currency":"SAR"}`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Amount().Equal(m.Amount()))
	assert.Equal(t, m.Currency(), back.Currency())
}

func TestNewMoney_RequiresCurrency(t *testing.T) {
	_, err := NewMoney(decimal.NewFromInt(1), "")
	assert.Error(t, err)
}

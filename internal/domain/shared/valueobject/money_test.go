package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid inputs", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromFloat(45.00), USD)
		require.NoError(t, err)
		assert.True(t, m.Amount().Equal(decimal.NewFromFloat(45.00)))
		assert.Equal(t, USD, m.Currency())
	})

	t.Run("rejects empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(1), "")
		assert.Error(t, err)
	})

	t.Run("parses string amounts", func(t *testing.T) {
		m, err := NewMoneyFromString("4.00", USD)
		require.NoError(t, err)
		assert.Equal(t, "4.00 USD", m.String())

		_, err = NewMoneyFromString("not-a-number", USD)
		assert.Error(t, err)
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	ten := NewMoneyUSD(decimal.NewFromInt(10))
	three := NewMoneyUSD(decimal.NewFromInt(3))

	t.Run("add", func(t *testing.T) {
		sum, err := ten.Add(three)
		require.NoError(t, err)
		assert.True(t, sum.Amount().Equal(decimal.NewFromInt(13)))
	})

	t.Run("subtract", func(t *testing.T) {
		diff, err := ten.Subtract(three)
		require.NoError(t, err)
		assert.True(t, diff.Amount().Equal(decimal.NewFromInt(7)))
	})

	t.Run("multiply", func(t *testing.T) {
		product := three.Multiply(decimal.NewFromFloat(0.10))
		assert.True(t, product.Amount().Equal(decimal.NewFromFloat(0.3)))

		scaled := three.MultiplyByInt(200)
		assert.True(t, scaled.Amount().Equal(decimal.NewFromInt(600)))
	})

	t.Run("currency mismatch is an error", func(t *testing.T) {
		eur, err := NewMoney(decimal.NewFromInt(5), EUR)
		require.NoError(t, err)

		_, err = ten.Add(eur)
		assert.Error(t, err)
		_, err = ten.Subtract(eur)
		assert.Error(t, err)
		_, err = ten.LessThan(eur)
		assert.Error(t, err)
	})
}

func TestMoney_Comparisons(t *testing.T) {
	small := NewMoneyUSD(decimal.NewFromInt(1))
	large := NewMoneyUSD(decimal.NewFromInt(2))

	less, err := small.LessThan(large)
	require.NoError(t, err)
	assert.True(t, less)

	greater, err := large.GreaterThan(small)
	require.NoError(t, err)
	assert.True(t, greater)

	assert.True(t, small.Equals(NewMoneyUSD(decimal.NewFromInt(1))))
	assert.False(t, small.Equals(large))
	assert.True(t, ZeroUSD().IsZero())
	assert.True(t, large.IsPositive())
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	original := NewMoneyUSD(decimal.NewFromFloat(45.5))

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"45.5","currency":"USD"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, original.Equals(decoded))
}

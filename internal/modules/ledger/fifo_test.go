package ledger

import (
	"testing"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.RequireFromString(v))
	}
	return out
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCalculate_SampleLedger(t *testing.T) {
	amounts := decs("-1777.02", "-1659.08", "-2190.06", "-1768.21", "-1612.08", "2275.64")
	quantities := decs("20.00", "20.00", "20.00", "20.00", "20.00", "-20.00")

	state, err := Calculate(amounts, quantities)
	require.NoError(t, err)

	assertDec(t, "80", state.CumulativeUnits)
	assertDec(t, "7229.43", state.CumulativeCost)
	assertDec(t, "1777.02", state.CostOfUnitsSold)
}

func TestCalculate_BuysOnly(t *testing.T) {
	amounts := decs("-100", "-250.50", "-99.99")
	quantities := decs("3", "10", "7")

	state, err := Calculate(amounts, quantities)
	require.NoError(t, err)

	assertDec(t, "20", state.CumulativeUnits)
	assertDec(t, "450.49", state.CumulativeCost)
	assertDec(t, "0", state.CostOfUnitsSold)
}

func TestCalculate_FullSellDrainsQueue(t *testing.T) {
	amounts := decs("-1000", "-500", "1800")
	quantities := decs("10", "5", "-15")

	state, err := Calculate(amounts, quantities)
	require.NoError(t, err)

	assertDec(t, "0", state.CumulativeUnits)
	assertDec(t, "0", state.CumulativeCost)
	assertDec(t, "1500", state.CostOfUnitsSold)
}

func TestCalculate_FractionalResidueDrains(t *testing.T) {
	// 10.5 units bought but only 10 whole units enter the queue; selling the
	// full 10.5 leaves a flat position and nothing in the queue.
	amounts := decs("-105", "120")
	quantities := decs("10.5", "-10.5")

	state, err := Calculate(amounts, quantities)
	require.NoError(t, err)

	assertDec(t, "0", state.CumulativeUnits)
	assertDec(t, "0", state.CumulativeCost)
	assertDec(t, "100", state.CostOfUnitsSold)
}

func TestCalculate_OrderDependent(t *testing.T) {
	cheapFirst, err := Calculate(decs("-100", "-200", "150"), decs("10", "10", "-5"))
	require.NoError(t, err)

	expensiveFirst, err := Calculate(decs("-200", "-100", "150"), decs("10", "10", "-5"))
	require.NoError(t, err)

	assertDec(t, "50", cheapFirst.CostOfUnitsSold)
	assertDec(t, "100", expensiveFirst.CostOfUnitsSold)
	assert.False(t, cheapFirst.CostOfUnitsSold.Equal(expensiveFirst.CostOfUnitsSold))
	assertDec(t, "250", cheapFirst.CumulativeCost)
	assertDec(t, "200", expensiveFirst.CumulativeCost)
}

func TestCalculate_CostOfUnitsSoldIsPerElement(t *testing.T) {
	state, err := Calculate(decs("-100", "60", "-300"), decs("10", "-5", "10"))
	require.NoError(t, err)

	assertDec(t, "15", state.CumulativeUnits)
	assertDec(t, "350", state.CumulativeCost)
	assertDec(t, "0", state.CostOfUnitsSold)
}

func TestCalculate_NonTerminatingUnitCost(t *testing.T) {
	state, err := Calculate(decs("-100"), decs("3"))
	require.NoError(t, err)

	assertDec(t, "100", state.CumulativeCost)
}

func TestReplay_OversellClamps(t *testing.T) {
	res, err := Replay(decs("-100", "300"), decs("10", "-15"))
	require.NoError(t, err)

	assert.True(t, res.Oversold())
	assert.Equal(t, int64(5), res.UnmatchedUnits)
	assertDec(t, "0", res.State.CumulativeUnits)
	assertDec(t, "0", res.State.CumulativeCost)
	assertDec(t, "100", res.State.CostOfUnitsSold)

	// A later buy starts a fresh position rather than repaying the oversold units.
	res, err = Replay(decs("-100", "300", "-50"), decs("10", "-15", "5"))
	require.NoError(t, err)
	assert.False(t, res.Oversold())
	assertDec(t, "5", res.State.CumulativeUnits)
	assertDec(t, "50", res.State.CumulativeCost)
}

func TestCalculate_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		amounts    []decimal.Decimal
		quantities []decimal.Decimal
	}{
		{"empty", nil, nil},
		{"mismatched lengths", decs("-1", "-2"), decs("1")},
		{"zero quantity", decs("-1", "0"), decs("1", "0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.amounts, tt.quantities)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.ErrorIs(t, err, domain.ErrAccounting)
		})
	}
}

func TestComputeAmount(t *testing.T) {
	q := decimal.NewFromInt(10)
	p := decimal.RequireFromString("12.5")
	f := decimal.NewFromInt(2)
	r := decimal.RequireFromString("0.9")

	assertDec(t, "-114.3", ComputeAmount(domain.TransactionTypeBuy, q, p, f, r))
	assertDec(t, "110.7", ComputeAmount(domain.TransactionTypeSell, q, p, f, r))
	assertDec(t, "110.7", ComputeAmount(domain.TransactionTypeDividend, q, p, f, r))
}

func TestDeriveGains(t *testing.T) {
	state := domain.PositionState{CostOfUnitsSold: decimal.NewFromInt(80)}

	sell := DeriveGains(domain.TransactionTypeSell, decimal.NewFromInt(110), state)
	assertDec(t, "30", sell.RealizedGains)
	assertDec(t, "0", sell.DividendsCollected)

	div := DeriveGains(domain.TransactionTypeDividend, decimal.NewFromInt(7), domain.PositionState{})
	assertDec(t, "0", div.RealizedGains)
	assertDec(t, "7", div.DividendsCollected)

	// Fees larger than the proceeds leave a negative net amount
	amount := ComputeAmount(domain.TransactionTypeSell, decimal.NewFromInt(1), decimal.RequireFromString("0.50"), decimal.NewFromInt(1), decimal.NewFromInt(1))
	assertDec(t, "-0.5", amount)
	loss := DeriveGains(domain.TransactionTypeSell, amount, domain.PositionState{CostOfUnitsSold: decimal.NewFromInt(10)})
	assertDec(t, "-10.5", loss.RealizedGains)

	buy := DeriveGains(domain.TransactionTypeBuy, decimal.NewFromInt(-50), domain.PositionState{})
	assert.True(t, buy.RealizedGains.IsZero())
}

// Package ledger turns imported transactions into FIFO position state.
package ledger

import (
	"fmt"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// zeroUnitsPlaces is the precision at which a running quantity counts as flat
const zeroUnitsPlaces = 4

// costPlaces bounds residue from non-terminating unit-cost divisions
const costPlaces = 8

// lot is a run of whole units bought at the same unit cost.
// unitCost carries the sign of the originating amount (negative for buys).
type lot struct {
	units    int64
	unitCost decimal.Decimal
}

type lots []lot

// pop removes up to n units from the front, returning the summed cost of the
// units removed and how many units could not be matched.
func (l lots) pop(n int64) (lots, decimal.Decimal, int64) {
	cost := decimal.Zero
	for n > 0 && len(l) > 0 {
		take := l[0].units
		if take > n {
			take = n
		}
		cost = cost.Add(l[0].unitCost.Mul(decimal.NewFromInt(take)))
		l[0].units -= take
		n -= take
		if l[0].units == 0 {
			l = l[1:]
		}
	}
	return l, cost, n
}

func (l lots) total() decimal.Decimal {
	sum := decimal.Zero
	for _, lt := range l {
		sum = sum.Add(lt.unitCost.Mul(decimal.NewFromInt(lt.units)))
	}
	return sum
}

// FIFOResult is the outcome of replaying a transaction history
type FIFOResult struct {
	State domain.PositionState
	// UnmatchedUnits counts whole units sold by the final element that had
	// no lot left to match against.
	UnmatchedUnits int64
}

// Oversold reports whether the final element sold more units than were held
func (r FIFOResult) Oversold() bool {
	return r.UnmatchedUnits > 0
}

// Calculate replays (amount, quantity) pairs in order and returns the
// position state after the final element.
func Calculate(amounts, quantities []decimal.Decimal) (domain.PositionState, error) {
	res, err := Replay(amounts, quantities)
	if err != nil {
		return domain.PositionState{}, err
	}
	return res.State, nil
}

// Replay is Calculate plus oversell diagnostics.
//
// Positive quantities acquire floor(|q|) units at amount/q each; negative
// quantities dispose of floor(|q|) units from the oldest lots. The running
// quantity never drops below zero, and once it rounds to zero at four places
// every remaining lot is discarded.
func Replay(amounts, quantities []decimal.Decimal) (FIFOResult, error) {
	if len(amounts) == 0 {
		return FIFOResult{}, fmt.Errorf("%w: empty history", domain.ErrInvalidInput)
	}
	if len(amounts) != len(quantities) {
		return FIFOResult{}, fmt.Errorf("%w: %d amounts but %d quantities",
			domain.ErrInvalidInput, len(amounts), len(quantities))
	}

	var (
		queue     lots
		running   = decimal.Zero
		cogs      decimal.Decimal
		unmatched int64
	)

	for i := range amounts {
		quantity := quantities[i]
		if quantity.IsZero() {
			return FIFOResult{}, fmt.Errorf("%w: zero quantity at position %d", domain.ErrInvalidInput, i)
		}

		cogs = decimal.Zero
		unmatched = 0
		unitCost := amounts[i].Div(quantity)
		whole := quantity.Abs().Floor().IntPart()

		if quantity.IsPositive() {
			running = running.Add(quantity)
			if whole > 0 {
				queue = append(queue, lot{units: whole, unitCost: unitCost})
			}
			continue
		}

		running = running.Add(quantity)
		if running.IsNegative() {
			running = decimal.Zero
		}
		queue, cogs, unmatched = queue.pop(whole)

		if running.Round(zeroUnitsPlaces).IsZero() {
			queue = nil
		}
	}

	return FIFOResult{
		State: domain.PositionState{
			CumulativeUnits: running.Round(zeroUnitsPlaces),
			CumulativeCost:  queue.total().Abs().Round(costPlaces),
			CostOfUnitsSold: cogs.Abs().Round(costPlaces),
		},
		UnmatchedUnits: unmatched,
	}, nil
}

// DeriveGains computes the gains a transaction realizes given its signed
// base-currency amount and the FIFO state it produced. Sell amounts are
// already signed as inflows, so fees above the proceeds deepen the loss.
func DeriveGains(txType domain.TransactionType, amount decimal.Decimal, state domain.PositionState) domain.TransactionGains {
	switch txType {
	case domain.TransactionTypeSell:
		return domain.TransactionGains{
			RealizedGains:      amount.Sub(state.CostOfUnitsSold),
			DividendsCollected: decimal.Zero,
		}
	case domain.TransactionTypeDividend:
		return domain.TransactionGains{
			RealizedGains:      decimal.Zero,
			DividendsCollected: amount,
		}
	}
	return domain.TransactionGains{RealizedGains: decimal.Zero, DividendsCollected: decimal.Zero}
}

// ComputeAmount returns the signed base-currency cash flow of a row:
// negative for buys (price plus fees paid), positive for sells and
// dividends (proceeds net of fees).
func ComputeAmount(txType domain.TransactionType, quantity, price, fees, rate decimal.Decimal) decimal.Decimal {
	gross := price.Mul(rate).Mul(quantity.Abs())
	costs := fees.Mul(rate)
	if txType == domain.TransactionTypeBuy {
		return gross.Add(costs).Neg()
	}
	return gross.Sub(costs)
}

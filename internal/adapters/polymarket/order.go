package polymarket

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const defaultTickSize = 0.01

var (
	shareStep = decimal.New(1, -2) // shares are traded in 0.01 steps
	microUnit = decimal.New(1, 6)
)

// sellPlan is a SELL rounded to what the CLOB accepts. Maker pays shares,
// taker pays USDC, both in 6-decimal units.
type sellPlan struct {
	Shares      decimal.Decimal
	Price       decimal.Decimal
	MakerAmount *big.Int
	TakerAmount *big.Int
}

// planSell rounds size down to 0.01 shares and price down to the tick.
// Rounding down never asks more than the bid or sells more than held.
func planSell(size, price, tick float64) (sellPlan, error) {
	if tick <= 0 || tick >= 1 {
		tick = defaultTickSize
	}
	t := decimal.NewFromFloat(tick)

	shares := decimal.NewFromFloat(size).Div(shareStep).Floor().Mul(shareStep)
	px := decimal.NewFromFloat(price).Div(t).Floor().Mul(t)
	if maxPx := decimal.NewFromInt(1).Sub(t); px.GreaterThan(maxPx) {
		px = maxPx
	}

	if !shares.IsPositive() {
		return sellPlan{}, fmt.Errorf("size %.6f rounds to zero shares", size)
	}
	if !px.IsPositive() {
		return sellPlan{}, fmt.Errorf("price %.6f below tick %.4f", price, tick)
	}

	return sellPlan{
		Shares:      shares,
		Price:       px,
		MakerAmount: shares.Mul(microUnit).Floor().BigInt(),
		TakerAmount: shares.Mul(px).Mul(microUnit).Floor().BigInt(),
	}, nil
}

package domain

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// pricePrecision is the number of decimal places kept when dividing pool state.
const pricePrecision int32 = 18

var (
	// ErrEmptyReserves is returned when a pool holds no liquidity on either side.
	ErrEmptyReserves = errors.New("pool reserves are empty")
	// ErrZeroSqrtPrice is returned for an uninitialised concentrated-liquidity pool.
	ErrZeroSqrtPrice = errors.New("pool sqrt price is zero")

	q192 = new(big.Int).Lsh(big.NewInt(1), 192)
)

// PriceFromReserves converts constant-product reserves into the price of the
// base token denominated in the quote token.
func PriceFromReserves(reserve0, reserve1 *big.Int, dec TokenDecimals, order TokenOrder) (decimal.Decimal, error) {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return decimal.Zero, ErrEmptyReserves
	}

	baseReserve, quoteReserve := reserve0, reserve1
	if !order.BaseIsToken0() {
		baseReserve, quoteReserve = reserve1, reserve0
	}

	// (quote / 10^qd) / (base / 10^bd) = quote * 10^bd / (base * 10^qd)
	num := new(big.Int).Mul(quoteReserve, pow10(dec.Base))
	den := new(big.Int).Mul(baseReserve, pow10(dec.Quote))

	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), pricePrecision), nil
}

// PriceFromSqrtPriceX96 converts a slot0 sqrtPriceX96 into the price of the
// base token denominated in the quote token.
func PriceFromSqrtPriceX96(sqrtPriceX96 *big.Int, dec TokenDecimals, order TokenOrder) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, ErrZeroSqrtPrice
	}

	dec0, dec1 := dec.Base, dec.Quote
	if !order.BaseIsToken0() {
		dec0, dec1 = dec.Quote, dec.Base
	}

	// token1 per token0 = sqrtP^2 / 2^192 * 10^(dec0 - dec1)
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, pow10(dec0))
	den := new(big.Int).Mul(q192, pow10(dec1))

	if !order.BaseIsToken0() {
		num, den = den, num
	}

	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), pricePrecision), nil
}

// ScaleAnswer turns a fixed-point oracle answer into a decimal.
func ScaleAnswer(answer *big.Int, decimals uint8) decimal.Decimal {
	if answer == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(answer, -int32(decimals))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

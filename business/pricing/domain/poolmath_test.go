package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func TestPriceFromReserves(t *testing.T) {
	usdcWeth := TokenDecimals{Base: 18, Quote: 6}

	tests := []struct {
		name     string
		reserve0 *big.Int
		reserve1 *big.Int
		dec      TokenDecimals
		order    TokenOrder
		want     string
		wantErr  error
	}{
		{
			name:     "base_is_token1",
			reserve0: new(big.Int).Mul(big.NewInt(5_000_000), exp10(6)), // USDC
			reserve1: new(big.Int).Mul(big.NewInt(2_000), exp10(18)),    // WETH
			dec:      usdcWeth,
			order:    TokenOrder{Base: Token1, Quote: Token0},
			want:     "2500",
		},
		{
			name:     "base_is_token0",
			reserve0: new(big.Int).Mul(big.NewInt(2_000), exp10(18)),
			reserve1: new(big.Int).Mul(big.NewInt(6_800_000), exp10(6)),
			dec:      usdcWeth,
			order:    TokenOrder{Base: Token0, Quote: Token1},
			want:     "3400",
		},
		{
			name:     "empty_reserve",
			reserve0: big.NewInt(0),
			reserve1: big.NewInt(1),
			dec:      usdcWeth,
			order:    TokenOrder{Base: Token0, Quote: Token1},
			wantErr:  ErrEmptyReserves,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceFromReserves(tt.reserve0, tt.reserve1, tt.dec, tt.order)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("price = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPriceFromSqrtPriceX96(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	tests := []struct {
		name    string
		sqrtP   *big.Int
		dec     TokenDecimals
		order   TokenOrder
		want    string
		wantErr error
	}{
		{
			// token0=USDC(6), token1=WETH(18). 1/2500 * 10^12 = 4e8, sqrt = 20000.
			name:  "usdc_token0_weth_base",
			sqrtP: new(big.Int).Mul(big.NewInt(20_000), q96),
			dec:   TokenDecimals{Base: 18, Quote: 6},
			order: TokenOrder{Base: Token1, Quote: Token0},
			want:  "2500",
		},
		{
			name:  "unit_price_equal_decimals",
			sqrtP: new(big.Int).Set(q96),
			dec:   TokenDecimals{Base: 18, Quote: 18},
			order: TokenOrder{Base: Token0, Quote: Token1},
			want:  "1",
		},
		{
			// raw price 4, base token0 with 18 vs 6 decimals scales by 10^12.
			name:  "weth_token0_base",
			sqrtP: new(big.Int).Mul(big.NewInt(2), q96),
			dec:   TokenDecimals{Base: 18, Quote: 6},
			order: TokenOrder{Base: Token0, Quote: Token1},
			want:  "4000000000000",
		},
		{
			name:    "zero_sqrt_price",
			sqrtP:   big.NewInt(0),
			dec:     TokenDecimals{Base: 18, Quote: 6},
			order:   TokenOrder{Base: Token0, Quote: Token1},
			wantErr: ErrZeroSqrtPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceFromSqrtPriceX96(tt.sqrtP, tt.dec, tt.order)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("price = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScaleAnswer(t *testing.T) {
	got := ScaleAnswer(big.NewInt(340012345678), 8)
	if !got.Equal(decimal.RequireFromString("3400.12345678")) {
		t.Errorf("ScaleAnswer = %s", got)
	}
	if !ScaleAnswer(nil, 8).IsZero() {
		t.Error("nil answer should scale to zero")
	}
}

func BenchmarkPriceFromSqrtPriceX96(b *testing.B) {
	sqrtP := new(big.Int).Mul(big.NewInt(20_000), new(big.Int).Lsh(big.NewInt(1), 96))
	dec := TokenDecimals{Base: 18, Quote: 6}
	order := TokenOrder{Base: Token1, Quote: Token0}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = PriceFromSqrtPriceX96(sqrtP, dec, order)
	}
}

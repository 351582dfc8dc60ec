// Package domain contains the core domain types for the pricing context.
package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PoolMathVariant selects how a pool's on-chain state maps to a price.
type PoolMathVariant string

const (
	// ConstantProduct pools expose getReserves() and price = reserveQuote / reserveBase.
	ConstantProduct PoolMathVariant = "constant_product"
	// ConcentratedLiquidity pools expose slot0() and price = (sqrtPriceX96 / 2^96)^2.
	ConcentratedLiquidity PoolMathVariant = "concentrated_liquidity"
)

// ParsePoolMathVariant accepts the config spellings of a variant.
func ParsePoolMathVariant(s string) (PoolMathVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "constant_product", "v2", "cpmm":
		return ConstantProduct, nil
	case "concentrated_liquidity", "v3", "clmm":
		return ConcentratedLiquidity, nil
	default:
		return "", fmt.Errorf("unknown pool math variant %q", s)
	}
}

// TokenSlot is the position a token occupies inside a pool contract.
type TokenSlot int

const (
	Token0 TokenSlot = 0
	Token1 TokenSlot = 1
)

// RPCEndpoints is a primary endpoint with an optional backup.
type RPCEndpoints struct {
	Primary string
	Backup  string
}

// HasBackup reports whether a distinct backup endpoint is configured.
func (e RPCEndpoints) HasBackup() bool {
	return e.Backup != "" && e.Backup != e.Primary
}

// TokenDecimals holds the decimal counts of the pair's tokens.
type TokenDecimals struct {
	Base  uint8
	Quote uint8
}

// TokenOrder records which pool slot each token of the pair occupies.
type TokenOrder struct {
	Base  TokenSlot
	Quote TokenSlot
}

// BaseIsToken0 reports whether the base asset sits in slot 0.
func (o TokenOrder) BaseIsToken0() bool {
	return o.Base == Token0
}

// PoolDescriptor describes an AMM pool used as the on-chain price reference.
type PoolDescriptor struct {
	Address  common.Address
	Decimals TokenDecimals
	Order    TokenOrder
	Variant  PoolMathVariant
}

// OracleDescriptor points at a price feed aggregator.
type OracleDescriptor struct {
	FeedAddress common.Address
}

// ApiDescriptor carries identifiers for hosted aggregator APIs.
type ApiDescriptor struct {
	Network      string         // token-price API network slug, e.g. "arbitrum"
	TokenAddress common.Address // base token address for the token-price API
	DexChainID   string         // DEX-pair API chain slug
	PairAddress  common.Address // DEX-pair API pair address
	SubgraphURL  string         // subgraph endpoint for pool queries
	PoolID       string         // subgraph pool id, defaults to the pool address
}

// ChainDescriptor is the static description of how to price the pair on one chain.
type ChainDescriptor struct {
	Name   string
	Pair   string
	RPC    RPCEndpoints
	Pool   *PoolDescriptor
	Oracle *OracleDescriptor
	Api    *ApiDescriptor
}

// HasPool reports whether an on-chain pool is configured.
func (d ChainDescriptor) HasPool() bool {
	return d.Pool != nil && d.Pool.Address != (common.Address{})
}

// HasOracle reports whether an oracle feed is configured.
func (d ChainDescriptor) HasOracle() bool {
	return d.Oracle != nil && d.Oracle.FeedAddress != (common.Address{})
}

// HasApi reports whether any aggregator identifier is configured.
func (d ChainDescriptor) HasApi() bool {
	if d.Api == nil {
		return false
	}
	a := d.Api
	return a.TokenAddress != (common.Address{}) || a.PairAddress != (common.Address{}) || a.SubgraphURL != ""
}

package onchain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// PairV2ABI covers the constant-product pair reads.
const PairV2ABI = `[
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
			{"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PoolV3ABI covers the concentrated-liquidity pool reads.
const PoolV3ABI = `[
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// AggregatorV3ABI covers the price feed reads.
const AggregatorV3ABI = `[
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"internalType": "uint80", "name": "roundId", "type": "uint80"},
			{"internalType": "int256", "name": "answer", "type": "int256"},
			{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
			{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
			{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const (
	methodGetReserves     = "getReserves"
	methodSlot0           = "slot0"
	methodDecimals        = "decimals"
	methodLatestRoundData = "latestRoundData"
)

// contractABIs holds the parsed ABIs shared by the on-chain sources.
type contractABIs struct {
	pairV2     abi.ABI
	poolV3     abi.ABI
	aggregator abi.ABI
}

func parseABIs() (*contractABIs, error) {
	pairV2, err := abi.JSON(strings.NewReader(PairV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	poolV3, err := abi.JSON(strings.NewReader(PoolV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	aggregator, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}
	return &contractABIs{pairV2: pairV2, poolV3: poolV3, aggregator: aggregator}, nil
}

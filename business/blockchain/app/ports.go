// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/pricegap-monitor/business/blockchain/domain"
)

// ContractCaller is the read-only RPC surface the on-chain price sources use.
type ContractCaller interface {
	// CallContract executes an eth_call against the latest block when blockNumber is nil.
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// CodeAt returns the deployed bytecode at addr.
	CodeAt(ctx context.Context, addr common.Address, blockNumber *big.Int) ([]byte, error)
}

// ChainClient is a per-chain RPC client with connection management.
type ChainClient interface {
	ContractCaller

	// BlockNumber returns the latest block height.
	BlockNumber(ctx context.Context) (uint64, error)

	// Connect dials the configured endpoints.
	Connect(ctx context.Context) error

	// Status reports the connection state.
	Status() domain.ConnectionStatus

	Close() error
}

package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fd1az/pricegap-monitor/business/blockchain/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// BlockchainService owns one RPC client per configured chain.
type BlockchainService struct {
	order   []string
	clients map[string]ChainClient
}

// NewBlockchainService creates a BlockchainService from per-chain clients.
// order fixes iteration order for status and connect.
func NewBlockchainService(order []string, clients map[string]ChainClient) *BlockchainService {
	kept := make([]string, 0, len(order))
	for _, chain := range order {
		if _, ok := clients[chain]; ok {
			kept = append(kept, chain)
		}
	}
	return &BlockchainService{order: kept, clients: clients}
}

// Client returns the caller for chain.
func (s *BlockchainService) Client(chain string) (ContractCaller, error) {
	c, ok := s.clients[chain]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeUnsupportedChain, fmt.Sprintf("no rpc client for %s", chain))
	}
	return c, nil
}

// Chains returns the chains with an RPC client.
func (s *BlockchainService) Chains() []string {
	return slices.Clone(s.order)
}

// ConnectAll dials every chain. Failures are collected, not fatal; clients redial lazily.
func (s *BlockchainService) ConnectAll(ctx context.Context) error {
	var errs []error
	for _, chain := range s.order {
		if err := s.clients[chain].Connect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", chain, err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks that chain's RPC answers with a block number.
func (s *BlockchainService) Ping(ctx context.Context, chain string) (uint64, error) {
	c, ok := s.clients[chain]
	if !ok {
		return 0, apperror.NotFound(apperror.CodeUnsupportedChain, chain)
	}
	return c.BlockNumber(ctx)
}

// Status returns the connection status of every chain.
func (s *BlockchainService) Status() []domain.ConnectionStatus {
	out := make([]domain.ConnectionStatus, 0, len(s.order))
	for _, chain := range s.order {
		out = append(out, s.clients[chain].Status())
	}
	return out
}

// Close closes all clients.
func (s *BlockchainService) Close() error {
	var errs []error
	for _, chain := range s.order {
		if err := s.clients[chain].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/pricegap-monitor/business/blockchain/app"
	"github.com/fd1az/pricegap-monitor/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
)

// Helper functions for type-safe access
func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

// Package blockchain implements the blockchain bounded context: per-chain RPC access.
package blockchain

import (
	"context"
	"time"

	"github.com/fd1az/pricegap-monitor/business/blockchain/app"
	blockchainDI "github.com/fd1az/pricegap-monitor/business/blockchain/di"
	"github.com/fd1az/pricegap-monitor/business/blockchain/infra/ethereum"
	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/config"
	"github.com/fd1az/pricegap-monitor/internal/di"
	"github.com/fd1az/pricegap-monitor/internal/logger"
	"github.com/fd1az/pricegap-monitor/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register BlockchainService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("chainRegistry").(*domain.ChainRegistry)

		clients := make(map[string]app.ChainClient)
		for _, chain := range registry.AllChains() {
			desc, _ := registry.Describe(chain)
			if desc.RPC.Primary == "" {
				continue
			}

			clientCfg := ethereum.DefaultClientConfig(chain, desc.RPC.Primary, desc.RPC.Backup)
			clientCfg.RetryLimit = cfg.Engine.RetryLimit

			client, err := ethereum.NewDualClient(clientCfg, log)
			if err != nil {
				panic("failed to create rpc client: " + err.Error())
			}
			clients[chain] = client
		}

		return app.NewBlockchainService(registry.AllChains(), clients)
	})

	return nil
}

// Startup dials every chain's RPC endpoints. Unreachable chains are logged
// and redialed lazily on first use.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := blockchainDI.GetBlockchainService(mono.Services())

	if mono.Config().DemoMode {
		log.Info(ctx, "demo mode, skipping rpc dial")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := svc.ConnectAll(connectCtx); err != nil {
		log.Warn(ctx, "some rpc endpoints unreachable, will retry on demand", "error", err)
	}

	mono.OnClose(svc.Close)

	log.Info(ctx, "blockchain module started", "chains", len(svc.Chains()))
	return nil
}

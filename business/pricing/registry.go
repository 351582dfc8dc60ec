package pricing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/config"
)

// NewChainRegistry builds the immutable chain registry from configuration.
func NewChainRegistry(cfg *config.Config) (*domain.ChainRegistry, error) {
	descs := make([]domain.ChainDescriptor, 0, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		d, err := describe(ch)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", ch.Name, err)
		}
		descs = append(descs, d)
	}
	return domain.NewChainRegistry(descs...)
}

func describe(ch config.ChainConfig) (domain.ChainDescriptor, error) {
	d := domain.ChainDescriptor{
		Name: ch.Name,
		Pair: ch.Pair,
		RPC: domain.RPCEndpoints{
			Primary: ch.RPC.Primary,
			Backup:  ch.RPC.Backup,
		},
	}

	if p := ch.Pool; p != nil && p.Address != "" {
		variant, err := domain.ParsePoolMathVariant(p.Variant)
		if err != nil {
			return d, err
		}
		order := domain.TokenOrder{Base: domain.Token1, Quote: domain.Token0}
		if p.BaseIsToken0 {
			order = domain.TokenOrder{Base: domain.Token0, Quote: domain.Token1}
		}
		d.Pool = &domain.PoolDescriptor{
			Address:  common.HexToAddress(p.Address),
			Decimals: domain.TokenDecimals{Base: p.BaseDecimals, Quote: p.QuoteDecimals},
			Order:    order,
			Variant:  variant,
		}
	}

	if o := ch.Oracle; o != nil && o.FeedAddress != "" {
		d.Oracle = &domain.OracleDescriptor{FeedAddress: common.HexToAddress(o.FeedAddress)}
	}

	if a := ch.Api; a != nil {
		api := &domain.ApiDescriptor{
			Network:     a.Network,
			DexChainID:  a.DexChainID,
			SubgraphURL: a.SubgraphURL,
			PoolID:      a.PoolID,
		}
		if a.TokenAddress != "" {
			api.TokenAddress = common.HexToAddress(a.TokenAddress)
		}
		if a.PairAddress != "" {
			api.PairAddress = common.HexToAddress(a.PairAddress)
		}
		if api.PoolID == "" && d.Pool != nil {
			api.PoolID = d.Pool.Address.Hex()
		}
		d.Api = api
	}

	return d, nil
}

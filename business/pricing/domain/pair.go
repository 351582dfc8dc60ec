package domain

import (
	"strings"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// ChainPair is one side of a monitored comparison, encoded as "chain:tokenPair".
type ChainPair struct {
	Chain string
	Pair  string
}

// ParseChainPair splits "arbitrum:ETH/USDC" on the first ':'. A bare chain
// name is accepted and leaves Pair empty.
func ParseChainPair(s string) (ChainPair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChainPair{}, apperror.Validation(apperror.CodeInvalidChainPair, "empty chain pair")
	}

	chain, pair, _ := strings.Cut(s, ":")
	chain = strings.TrimSpace(chain)
	if chain == "" {
		return ChainPair{}, apperror.Validation(apperror.CodeInvalidChainPair, s)
	}

	return ChainPair{Chain: chain, Pair: strings.TrimSpace(pair)}, nil
}

// String returns the "chain:pair" encoding.
func (c ChainPair) String() string {
	if c.Pair == "" {
		return c.Chain
	}
	return c.Chain + ":" + c.Pair
}

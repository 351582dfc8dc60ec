// Package onchain implements price sources that read AMM pools and price feeds over JSON-RPC.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	blockchainApp "github.com/fd1az/pricegap-monitor/business/blockchain/app"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

const (
	tracerName = "github.com/fd1az/pricegap-monitor/business/pricing/infra/onchain"
	meterName  = "github.com/fd1az/pricegap-monitor/business/pricing/infra/onchain"
)

// CallerProvider resolves the RPC caller for a chain.
type CallerProvider interface {
	Client(chain string) (blockchainApp.ContractCaller, error)
}

// call packs method, executes it against addr and unpacks the outputs.
func call(ctx context.Context, caller blockchainApp.ContractCaller, contract abi.ABI, addr common.Address, method string) ([]any, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s on %s", method, addr.Hex())))
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("decode %s from %s", method, addr.Hex())))
	}
	return values, nil
}

// verification is the per-chain outcome of checking a contract.
type verification struct {
	done     bool
	unusable error // set when the contract can never be used
	meta     any   // probe result worth keeping, e.g. feed decimals
}

// verifier remembers which contracts answered their probe. A contract with
// no code or an undecodable probe is unusable for the life of the process;
// transport failures leave it unverified so the next call retries.
type verifier struct {
	mu    sync.Mutex
	state map[string]*verification
}

func newVerifier() *verifier {
	return &verifier{state: make(map[string]*verification)}
}

// verify runs probe once per chain and returns its metadata.
func (v *verifier) verify(ctx context.Context, chain string, caller blockchainApp.ContractCaller, addr common.Address, probe func(context.Context) (any, error)) (any, error) {
	v.mu.Lock()
	st, ok := v.state[chain]
	if ok && st.done {
		v.mu.Unlock()
		if st.unusable != nil {
			return nil, st.unusable
		}
		return st.meta, nil
	}
	v.mu.Unlock()

	code, err := caller.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("code lookup for %s", addr.Hex())))
	}
	if len(code) == 0 {
		return nil, v.markUnusable(chain, apperror.New(apperror.CodeContractUnverified,
			apperror.WithContext(fmt.Sprintf("%s: no contract at %s", chain, addr.Hex()))))
	}

	meta, err := probe(ctx)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeMalformedResponse) {
			return nil, v.markUnusable(chain, apperror.New(apperror.CodeContractUnverified,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("%s: %s does not answer the expected interface", chain, addr.Hex()))))
		}
		return nil, err
	}

	v.mu.Lock()
	v.state[chain] = &verification{done: true, meta: meta}
	v.mu.Unlock()

	return meta, nil
}

func (v *verifier) markUnusable(chain string, err error) error {
	v.mu.Lock()
	v.state[chain] = &verification{done: true, unusable: err}
	v.mu.Unlock()
	return err
}

// unusable reports whether chain's contract failed verification.
func (v *verifier) unusable(chain string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.state[chain]
	return ok && st.unusable != nil
}

func notConfigured(source, chain string) error {
	return apperror.New(apperror.CodeSourceNotConfigured,
		apperror.WithContext(fmt.Sprintf("%s source has no contract for %s", source, chain)))
}

func unsupported(chain string) error {
	return apperror.NotFound(apperror.CodeUnsupportedChain, chain)
}

var errNonPositive = errors.New("non-positive price")

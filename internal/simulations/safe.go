package simulations

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/debt"
	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/types"
)

var (
	ErrUnknownTarget   = errors.New("instruction targets unknown contract")
	ErrUnknownSelector = errors.New("instruction calls unknown function")
)

// SafeConfig wires the simulated avatar to the contracts it can call.
type SafeConfig struct {
	Address     common.Address
	Asset       common.Address
	DSProxy     common.Address
	CurvePool   common.Address
	ConvexVault common.Address
}

// SimSafe executes instruction batches against the simulated protocol
// contracts the way the avatar would on chain. Execution is atomic: a
// failing instruction rolls nothing forward.
type SimSafe struct {
	mu      sync.Mutex
	cfg     SafeConfig
	bank    *Bank
	vat     *MockVat
	pool    *StableSwapPool
	rewards *RewardsPool
}

func NewSimSafe(cfg SafeConfig, bank *Bank, vat *MockVat, pool *StableSwapPool, rewards *RewardsPool) *SimSafe {
	return &SimSafe{cfg: cfg, bank: bank, vat: vat, pool: pool, rewards: rewards}
}

// Address returns the avatar address.
func (s *SimSafe) Address() common.Address {
	return s.cfg.Address
}

// TokenBalance reports the avatar's wallet balance of token.
func (s *SimSafe) TokenBalance(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	return s.bank.BalanceOf(token, s.cfg.Address), nil
}

// Execute applies the instructions in order. A failing instruction
// restores every contract to its pre-batch state, so the batch lands
// whole or not at all.
func (s *SimSafe) Execute(ctx context.Context, instructions []types.Instruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := s.bank.snapshot()
	var poolState poolSnapshot
	if s.pool != nil {
		poolState = s.pool.snapshot()
	}
	var stakes map[common.Address]sdkmath.Int
	if s.rewards != nil {
		stakes = s.rewards.snapshot()
	}
	var vault debt.VaultState
	if s.vat != nil {
		vault = s.vat.snapshot()
	}

	for i, instruction := range instructions {
		if err := s.apply(instruction); err != nil {
			s.bank.restore(balances)
			if s.pool != nil {
				s.pool.restore(poolState)
			}
			if s.rewards != nil {
				s.rewards.restore(stakes)
			}
			if s.vat != nil {
				s.vat.restore(vault)
			}
			return fmt.Errorf("instruction %d of %d: %w", i+1, len(instructions), err)
		}
	}
	return nil
}

func (s *SimSafe) apply(instruction types.Instruction) error {
	switch instruction.To {
	case s.cfg.Asset:
		return s.applyAsset(instruction.Data)
	case s.cfg.DSProxy:
		return s.applyProxy(instruction.Data)
	case s.cfg.CurvePool:
		return s.applyPool(instruction.Data)
	case s.cfg.ConvexVault:
		return s.applyRewards(instruction.Data)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTarget, instruction.To)
	}
}

func (s *SimSafe) applyAsset(data []byte) error {
	method, args, err := unpackCall(encoding.ERC20, data)
	if err != nil {
		return err
	}
	switch method {
	case "approve":
		// allowances are not modelled
		return nil
	case "transfer":
		to := args[0].(common.Address)
		amount := sdkmath.NewIntFromBigInt(args[1].(*big.Int))
		if err := s.bank.Burn(s.cfg.Asset, s.cfg.Address, amount); err != nil {
			return err
		}
		s.bank.Mint(s.cfg.Asset, to, amount)
		return nil
	default:
		return fmt.Errorf("%w: erc20.%s", ErrUnknownSelector, method)
	}
}

func (s *SimSafe) applyProxy(data []byte) error {
	method, args, err := unpackCall(encoding.DSProxy, data)
	if err != nil {
		return err
	}
	if method != "execute" {
		return fmt.Errorf("%w: dsProxy.%s", ErrUnknownSelector, method)
	}
	inner := args[1].([]byte)
	innerMethod, innerArgs, err := unpackCall(encoding.ProxyActions, inner)
	if err != nil {
		return err
	}
	if innerMethod != "wipe" {
		return fmt.Errorf("%w: proxyActions.%s", ErrUnknownSelector, innerMethod)
	}
	amount := sdkmath.NewIntFromBigInt(innerArgs[3].(*big.Int))
	// the repayment spends the avatar's stablecoin balance
	if err := s.bank.Burn(s.cfg.Asset, s.cfg.Address, amount); err != nil {
		return err
	}
	return s.vat.Wipe(amount)
}

func (s *SimSafe) applyPool(data []byte) error {
	method, args, err := unpackCall(encoding.CurvePool, data)
	if err != nil {
		return err
	}
	if method != "remove_liquidity_one_coin" {
		return fmt.Errorf("%w: curvePool.%s", ErrUnknownSelector, method)
	}
	lptIn := sdkmath.NewIntFromBigInt(args[0].(*big.Int))
	coinIndex := int(args[1].(*big.Int).Int64())
	minOut := sdkmath.NewIntFromBigInt(args[2].(*big.Int))
	_, err = s.pool.RemoveLiquidityOneCoin(lptIn, coinIndex, minOut, s.cfg.Address)
	return err
}

func (s *SimSafe) applyRewards(data []byte) error {
	method, args, err := unpackCall(encoding.ConvexRewards, data)
	if err != nil {
		return err
	}
	if method != "withdrawAndUnwrap" {
		return fmt.Errorf("%w: convexRewards.%s", ErrUnknownSelector, method)
	}
	amount := sdkmath.NewIntFromBigInt(args[0].(*big.Int))
	return s.rewards.WithdrawAndUnwrap(s.cfg.Address, amount)
}

func unpackCall(parsed abi.ABI, data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, errors.New("calldata shorter than a selector")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnknownSelector, err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, err
	}
	return method.Name, args, nil
}

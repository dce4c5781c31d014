/*
This file declares the external-protocol call surface the adapters encode
against: ERC20, Balancer vault, Curve pools, Convex reward pools, Maker
(vat, spotter, DSProxy) and the Gnosis Safe module entrypoint. The parsed
ABIs are shared by the instruction builders, the live chain client and the
simulation executor, so every payload is packed and unpacked the same way.
*/

package encoding

import (
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/types"
)

const erc20JSON = `[
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const gaugeJSON = `[
	{"type":"function","name":"withdraw","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const convexRewardsJSON = `[
	{"type":"function","name":"withdrawAndUnwrap","inputs":[{"name":"amount","type":"uint256"},{"name":"claim","type":"bool"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const curvePoolJSON = `[
	{"type":"function","name":"remove_liquidity_one_coin","inputs":[{"name":"_token_amount","type":"uint256"},{"name":"i","type":"int128"},{"name":"min_amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"calc_withdraw_one_coin","inputs":[{"name":"_token_amount","type":"uint256"},{"name":"i","type":"int128"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"get_dy","inputs":[{"name":"i","type":"int128"},{"name":"j","type":"int128"},{"name":"dx","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"balances","inputs":[{"name":"i","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const balancerVaultJSON = `[
	{"type":"function","name":"swap","inputs":[
		{"name":"singleSwap","type":"tuple","components":[
			{"name":"poolId","type":"bytes32"},
			{"name":"kind","type":"uint8"},
			{"name":"assetIn","type":"address"},
			{"name":"assetOut","type":"address"},
			{"name":"amount","type":"uint256"},
			{"name":"userData","type":"bytes"}]},
		{"name":"funds","type":"tuple","components":[
			{"name":"sender","type":"address"},
			{"name":"fromInternalBalance","type":"bool"},
			{"name":"recipient","type":"address"},
			{"name":"toInternalBalance","type":"bool"}]},
		{"name":"limit","type":"uint256"},
		{"name":"deadline","type":"uint256"}],
	"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getPoolTokens","inputs":[{"name":"poolId","type":"bytes32"}],
	"outputs":[{"name":"tokens","type":"address[]"},{"name":"balances","type":"uint256[]"},{"name":"lastChangeBlock","type":"uint256"}],
	"stateMutability":"view"}
]`

const balancerQueriesJSON = `[
	{"type":"function","name":"querySwap","inputs":[
		{"name":"singleSwap","type":"tuple","components":[
			{"name":"poolId","type":"bytes32"},
			{"name":"kind","type":"uint8"},
			{"name":"assetIn","type":"address"},
			{"name":"assetOut","type":"address"},
			{"name":"amount","type":"uint256"},
			{"name":"userData","type":"bytes"}]},
		{"name":"funds","type":"tuple","components":[
			{"name":"sender","type":"address"},
			{"name":"fromInternalBalance","type":"bool"},
			{"name":"recipient","type":"address"},
			{"name":"toInternalBalance","type":"bool"}]}],
	"outputs":[{"name":"","type":"uint256"}]}
]`

const dsProxyJSON = `[
	{"type":"function","name":"execute","inputs":[{"name":"_target","type":"address"},{"name":"_data","type":"bytes"}],"outputs":[{"name":"response","type":"bytes32"}]}
]`

const proxyActionsJSON = `[
	{"type":"function","name":"wipe","inputs":[{"name":"manager","type":"address"},{"name":"daiJoin","type":"address"},{"name":"cdp","type":"uint256"},{"name":"wad","type":"uint256"}],"outputs":[]}
]`

const safeJSON = `[
	{"type":"function","name":"execTransactionFromModule","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"}],"outputs":[{"name":"success","type":"bool"}]}
]`

const multiSendJSON = `[
	{"type":"function","name":"multiSend","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

const vatJSON = `[
	{"type":"function","name":"urns","inputs":[{"name":"ilk","type":"bytes32"},{"name":"urn","type":"address"}],"outputs":[{"name":"ink","type":"uint256"},{"name":"art","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"ilks","inputs":[{"name":"ilk","type":"bytes32"}],"outputs":[{"name":"Art","type":"uint256"},{"name":"rate","type":"uint256"},{"name":"spot","type":"uint256"},{"name":"line","type":"uint256"},{"name":"dust","type":"uint256"}],"stateMutability":"view"}
]`

const spotterJSON = `[
	{"type":"function","name":"ilks","inputs":[{"name":"ilk","type":"bytes32"}],"outputs":[{"name":"pip","type":"address"},{"name":"mat","type":"uint256"}],"stateMutability":"view"}
]`

// Parsed protocol ABIs, shared across the repository.
var (
	ERC20           = mustParse("erc20", erc20JSON)
	Gauge           = mustParse("gauge", gaugeJSON)
	ConvexRewards   = mustParse("convexRewards", convexRewardsJSON)
	CurvePool       = mustParse("curvePool", curvePoolJSON)
	BalancerVault   = mustParse("balancerVault", balancerVaultJSON)
	BalancerQueries = mustParse("balancerQueries", balancerQueriesJSON)
	DSProxy         = mustParse("dsProxy", dsProxyJSON)
	ProxyActions    = mustParse("proxyActions", proxyActionsJSON)
	Safe            = mustParse("safe", safeJSON)
	MultiSend       = mustParse("multiSend", multiSendJSON)
	Vat             = mustParse("vat", vatJSON)
	Spotter         = mustParse("spotter", spotterJSON)
)

func mustParse(name, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("encoding: invalid %s ABI: %v", name, err))
	}
	return parsed
}

// SwapKind mirrors the Balancer vault swap kind enum.
type SwapKind uint8

const (
	SwapGivenIn  SwapKind = 0
	SwapGivenOut SwapKind = 1
)

// SingleSwap mirrors the Balancer vault's SingleSwap struct.
type SingleSwap struct {
	PoolId   [32]byte
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

// FundManagement mirrors the Balancer vault's FundManagement struct.
type FundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

// PackApprove encodes erc20.approve(spender, amount).
func PackApprove(spender common.Address, amount sdkmath.Int) ([]byte, error) {
	return ERC20.Pack("approve", spender, amount.BigInt())
}

// PackGaugeWithdraw encodes gauge.withdraw(amount), unstaking BPT.
func PackGaugeWithdraw(amount sdkmath.Int) ([]byte, error) {
	return Gauge.Pack("withdraw", amount.BigInt())
}

// PackWithdrawAndUnwrap encodes convexRewards.withdrawAndUnwrap(amount, claim).
func PackWithdrawAndUnwrap(amount sdkmath.Int, claim bool) ([]byte, error) {
	return ConvexRewards.Pack("withdrawAndUnwrap", amount.BigInt(), claim)
}

// PackRemoveLiquidityOneCoin encodes a single-sided Curve pool exit.
func PackRemoveLiquidityOneCoin(lptAmount sdkmath.Int, coinIndex int64, minAmountOut sdkmath.Int) ([]byte, error) {
	return CurvePool.Pack("remove_liquidity_one_coin", lptAmount.BigInt(), big.NewInt(coinIndex), minAmountOut.BigInt())
}

// PackBalancerSwap encodes vault.swap(singleSwap, funds, limit, deadline).
func PackBalancerSwap(swap SingleSwap, funds FundManagement, limit sdkmath.Int, deadline *big.Int) ([]byte, error) {
	return BalancerVault.Pack("swap", swap, funds, limit.BigInt(), deadline)
}

// PackWipe encodes proxyActions.wipe through dsProxy.execute, the Maker
// repayment path: the proxy delegatecalls the actions library.
func PackWipe(proxyActions, cdpManager, daiJoin common.Address, cdp uint64, amount sdkmath.Int) ([]byte, error) {
	wipe, err := ProxyActions.Pack("wipe", cdpManager, daiJoin, new(big.Int).SetUint64(cdp), amount.BigInt())
	if err != nil {
		return nil, err
	}
	return DSProxy.Pack("execute", proxyActions, wipe)
}

// PackExecTransactionFromModule encodes the safe module entrypoint for one
// instruction.
func PackExecTransactionFromModule(to common.Address, value sdkmath.Int, data []byte, operation uint8) ([]byte, error) {
	return Safe.Pack("execTransactionFromModule", to, value.BigInt(), data, operation)
}

// PackMultiSend encodes a MultiSend batch: each instruction packed as
// operation (1 byte), to (20), value (32), data length (32), data. The
// library reverts the whole batch when any inner call fails.
func PackMultiSend(instructions []types.Instruction) ([]byte, error) {
	var transactions []byte
	for _, instruction := range instructions {
		value := big.NewInt(0)
		if !instruction.Value.IsNil() {
			value = instruction.Value.BigInt()
		}
		transactions = append(transactions, byte(instruction.Operation))
		transactions = append(transactions, instruction.To.Bytes()...)
		transactions = append(transactions, common.LeftPadBytes(value.Bytes(), 32)...)
		transactions = append(transactions, common.LeftPadBytes(big.NewInt(int64(len(instruction.Data))).Bytes(), 32)...)
		transactions = append(transactions, instruction.Data...)
	}
	return MultiSend.Pack("multiSend", transactions)
}

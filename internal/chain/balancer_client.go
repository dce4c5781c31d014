package chain

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/fixedpoint"
)

// StableCoin names one underlying stable tracked by the parity guard.
type StableCoin struct {
	Token    common.Address
	Decimals int
}

// BalancerClientConfig locates one Balancer pool position.
type BalancerClientConfig struct {
	Vault   common.Address
	Queries common.Address // BalancerQueries helper contract
	PoolID  [32]byte
	BPT     common.Address
	Gauge   common.Address
	Safe    common.Address

	Reference         common.Address
	ReferenceDecimals int
	// Stables are the non-reference underlying stables probed for parity.
	Stables []StableCoin
}

// BalancerClient implements the boosted and stable pool strategies' read
// surfaces over JSON-RPC. Quotes go through the BalancerQueries contract,
// which runs the vault's swap math in an eth_call.
type BalancerClient struct {
	cfg    BalancerClientConfig
	client *Client
}

func NewBalancerClient(cfg BalancerClientConfig, client *Client) (*BalancerClient, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	return &BalancerClient{cfg: cfg, client: client}, nil
}

func (c *BalancerClient) BPTBalance(ctx context.Context) (sdkmath.Int, error) {
	data, err := encoding.ERC20.Pack("balanceOf", c.cfg.Safe)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode balanceOf: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.BPT, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("bpt balanceOf read failed: %w", err)
	}
	out, err := encoding.ERC20.Unpack("balanceOf", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode bpt balanceOf: %w", err)
	}
	return fromBig(out[0]), nil
}

func (c *BalancerClient) GaugeBalance(ctx context.Context) (sdkmath.Int, error) {
	data, err := encoding.Gauge.Pack("balanceOf", c.cfg.Safe)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode gauge balanceOf: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Gauge, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("gauge balanceOf read failed: %w", err)
	}
	out, err := encoding.Gauge.Unpack("balanceOf", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode gauge balanceOf: %w", err)
	}
	return fromBig(out[0]), nil
}

// SwapOutGivenIn quotes the reference output for swapping bptIn.
func (c *BalancerClient) SwapOutGivenIn(ctx context.Context, bptIn sdkmath.Int) (sdkmath.Int, error) {
	return c.querySwap(ctx, encoding.SwapGivenIn, c.cfg.BPT, c.cfg.Reference, bptIn)
}

// SwapInGivenOut quotes the BPT required to produce amountOut of the
// reference.
func (c *BalancerClient) SwapInGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return c.querySwap(ctx, encoding.SwapGivenOut, c.cfg.BPT, c.cfg.Reference, amountOut)
}

// ExitOutGivenIn aliases SwapOutGivenIn for the stable pool strategy.
func (c *BalancerClient) ExitOutGivenIn(ctx context.Context, bptIn sdkmath.Int) (sdkmath.Int, error) {
	return c.SwapOutGivenIn(ctx, bptIn)
}

// ExitInGivenOut aliases SwapInGivenOut for the stable pool strategy.
func (c *BalancerClient) ExitInGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return c.SwapInGivenOut(ctx, amountOut)
}

// LiquidStableBalance reads the reference asset's balance inside the
// pool.
func (c *BalancerClient) LiquidStableBalance(ctx context.Context) (sdkmath.Int, error) {
	data, err := encoding.BalancerVault.Pack("getPoolTokens", c.cfg.PoolID)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode getPoolTokens: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Vault, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("getPoolTokens read failed: %w", err)
	}
	out, err := encoding.BalancerVault.Unpack("getPoolTokens", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode getPoolTokens: %w", err)
	}
	tokens, ok := out[0].([]common.Address)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unexpected getPoolTokens token list shape")
	}
	balances, ok := out[1].([]*big.Int)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unexpected getPoolTokens balance list shape")
	}
	for i, token := range tokens {
		if token == c.cfg.Reference && i < len(balances) {
			return sdkmath.NewIntFromBigInt(balances[i]), nil
		}
	}
	return sdkmath.ZeroInt(), fmt.Errorf("reference asset %s not found in pool", c.cfg.Reference)
}

// StablePrices probes one unit of every non-reference stable against the
// reference, wad scaled.
func (c *BalancerClient) StablePrices(ctx context.Context) ([]sdkmath.Int, error) {
	prices := make([]sdkmath.Int, 0, len(c.cfg.Stables))
	for _, stable := range c.cfg.Stables {
		probe := sdkmath.NewIntWithDecimal(1, stable.Decimals)
		out, err := c.querySwap(ctx, encoding.SwapGivenIn, stable.Token, c.cfg.Reference, probe)
		if err != nil {
			return nil, fmt.Errorf("parity probe for %s failed: %w", stable.Token, err)
		}
		price, err := fixedpoint.Rescale(out, c.cfg.ReferenceDecimals, 18)
		if err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, nil
}

func (c *BalancerClient) querySwap(ctx context.Context, kind encoding.SwapKind, assetIn, assetOut common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	swap := encoding.SingleSwap{
		PoolId:   c.cfg.PoolID,
		Kind:     uint8(kind),
		AssetIn:  assetIn,
		AssetOut: assetOut,
		Amount:   amount.BigInt(),
		UserData: []byte{},
	}
	funds := encoding.FundManagement{
		Sender:    c.cfg.Safe,
		Recipient: c.cfg.Safe,
	}
	data, err := encoding.BalancerQueries.Pack("querySwap", swap, funds)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode querySwap: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Queries, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("querySwap read failed: %w", err)
	}
	out, err := encoding.BalancerQueries.Unpack("querySwap", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode querySwap: %w", err)
	}
	return fromBig(out[0]), nil
}

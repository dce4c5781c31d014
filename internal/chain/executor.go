package chain

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/types"
)

// ModuleExecutor runs instruction batches through a Gnosis Safe the
// keeper key is enabled on as a module. The whole batch is packed into
// one MultiSend payload the safe delegatecalls, so it lands in a single
// transaction: either every instruction executes or the transaction
// reverts with no state change.
type ModuleExecutor struct {
	safe      common.Address
	multiSend common.Address
	client    *Client
	log       zerolog.Logger
}

func NewModuleExecutor(safe, multiSend common.Address, client *Client) (*ModuleExecutor, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	if multiSend == (common.Address{}) {
		return nil, fmt.Errorf("multisend address cannot be zero")
	}
	return &ModuleExecutor{
		safe:      safe,
		multiSend: multiSend,
		client:    client,
		log:       logger.GetForComponent("module_executor"),
	}, nil
}

// Execute relays the instructions through the safe as one MultiSend
// transaction.
func (e *ModuleExecutor) Execute(ctx context.Context, instructions []types.Instruction) error {
	if len(instructions) == 0 {
		return nil
	}
	batch, err := encoding.PackMultiSend(instructions)
	if err != nil {
		return fmt.Errorf("failed to encode multisend batch: %w", err)
	}
	// the safe must delegatecall MultiSend for the inner calls to run as
	// the safe itself
	data, err := encoding.PackExecTransactionFromModule(
		e.multiSend,
		sdkmath.ZeroInt(),
		batch,
		uint8(types.OperationDelegateCall),
	)
	if err != nil {
		return fmt.Errorf("failed to encode module call: %w", err)
	}
	receipt, err := e.client.Transact(ctx, e.safe, big.NewInt(0), data)
	if err != nil {
		return fmt.Errorf("batch of %d instructions: %w", len(instructions), err)
	}
	e.log.Info().
		Int("instructions", len(instructions)).
		Str("tx", receipt.TxHash.Hex()).
		Msg("Batch executed through safe module")
	return nil
}

// TokenBalance reads the safe's ERC20 balance of token.
func (e *ModuleExecutor) TokenBalance(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	data, err := encoding.ERC20.Pack("balanceOf", e.safe)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode balanceOf: %w", err)
	}
	raw, err := e.client.Call(ctx, token, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("balanceOf read failed: %w", err)
	}
	out, err := encoding.ERC20.Unpack("balanceOf", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	return fromBig(out[0]), nil
}

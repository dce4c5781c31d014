/*

This file contains the JSON-RPC client shared by the live oracle and
executor implementations: read-only contract calls, and signed
transactions with receipt confirmation.

*/

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/gnosisguild/siphon/internal/logger"
)

var (
	ErrTransactionReverted = errors.New("transaction reverted on chain")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

const (
	confirmationTimeout = 3 * time.Minute
	confirmationPoll    = 2 * time.Second
)

// Client wraps an Ethereum JSON-RPC connection with one signing key.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	sender  common.Address
	log     zerolog.Logger
}

// Dial connects to the endpoint and derives the sender from the hex
// private key.
func Dial(ctx context.Context, endpoint, privateKeyHex string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum node: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to retrieve chain ID: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("invalid keeper private key: %w", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	log := logger.GetForComponent("chain_client")
	log.Info().
		Str("sender", sender.Hex()).
		Str("chainId", chainID.String()).
		Msg("Connected to Ethereum node")

	return &Client{
		eth:     eth,
		chainID: chainID,
		key:     key,
		sender:  sender,
		log:     log,
	}, nil
}

// Sender is the keeper address transactions are signed with.
func (c *Client) Sender() common.Address {
	return c.sender
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Call performs a read-only contract call.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.sender,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", to, err)
	}
	return result, nil
}

// Transact signs and broadcasts a transaction, then waits for its
// receipt and requires a success status.
func (c *Client) Transact(ctx context.Context, to common.Address, value *big.Int, data []byte) (*ethtypes.Receipt, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.sender,
		To:       &to,
		Value:    value,
		Data:     data,
		GasPrice: gasPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	c.log.Info().
		Str("tx", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Msg("Transaction broadcast")

	return c.waitForReceipt(ctx, signed.Hash())
}

func (c *Client) waitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(confirmationPoll)
	defer ticker.Stop()
	deadline := time.After(confirmationTimeout)

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash)
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt lookup for %s failed: %w", hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, hash)
		case <-ticker.C:
		}
	}
}

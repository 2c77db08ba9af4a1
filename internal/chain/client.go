package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// backend is the subset of ethclient.Client the engine uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Client submits signed trade transactions and reads token balances.
type Client struct {
	rpcClient *rpc.Client
	eth       backend

	mu            sync.RWMutex
	decimalsCache map[string]uint8
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	c := newClient(ethclient.NewClient(rpcClient))
	c.rpcClient = rpcClient
	return c, nil
}

func newClient(eth backend) *Client {
	return &Client{
		eth:           eth,
		decimalsCache: make(map[string]uint8),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// Submit broadcasts a signed, RLP/typed-envelope encoded transaction and
// returns its hash as the trade's ledger reference. The payload is opaque to
// the engine; resubmitting the same payload yields the same reference.
func (c *Client) Submit(ctx context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("empty transaction payload")
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(payload); err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		if isKnownTransaction(err) {
			return tx.Hash().Hex(), nil
		}
		return "", fmt.Errorf("send transaction %s: %w", tx.Hash().Hex(), err)
	}
	return tx.Hash().Hex(), nil
}

// isKnownTransaction matches the txpool's rejection of a resubmitted transaction.
func isKnownTransaction(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := rpcErr.Error()
	return msg == "already known" || msg == "known transaction"
}

package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"bondingCurve/internal/fixedpoint"
)

const erc20ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

func getERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// HolderBalance returns holder's balance of the ERC20 token at asset, rescaled
// from the token's decimals to 18-decimal fixed point.
func (c *Client) HolderBalance(ctx context.Context, asset, holder string) (fixedpoint.Value, error) {
	if !common.IsHexAddress(asset) {
		return fixedpoint.Value{}, fmt.Errorf("asset %q is not a token address", asset)
	}
	if !common.IsHexAddress(holder) {
		return fixedpoint.Value{}, fmt.Errorf("holder %q is not an address", holder)
	}
	token := common.HexToAddress(asset)

	raw, err := c.balanceOf(ctx, token, common.HexToAddress(holder))
	if err != nil {
		return fixedpoint.Value{}, err
	}
	decimals, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return fixedpoint.FromBig(rescale(raw, decimals))
}

func (c *Client) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20, err := getERC20ABI()
	if err != nil {
		return nil, err
	}
	data, err := erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	resp, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	values, err := erc20.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return bal, nil
}

func (c *Client) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	key := strings.ToLower(token.Hex())
	c.mu.RLock()
	d, ok := c.decimalsCache[key]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	erc20, err := getERC20ABI()
	if err != nil {
		return 0, err
	}
	data, err := erc20.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	resp, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	values, err := erc20.Unpack("decimals", resp)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decimals return size %d", len(values))
	}
	d, ok = values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}

	c.mu.Lock()
	c.decimalsCache[key] = d
	c.mu.Unlock()
	return d, nil
}

// rescale converts an amount with the given decimals to 18 decimals,
// truncating extra precision.
func rescale(raw *big.Int, decimals uint8) *big.Int {
	out := new(big.Int).Set(raw)
	switch {
	case decimals < fixedpoint.Decimals:
		out.Mul(out, pow10(fixedpoint.Decimals-int(decimals)))
	case decimals > fixedpoint.Decimals:
		out.Quo(out, pow10(int(decimals)-fixedpoint.Decimals))
	}
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

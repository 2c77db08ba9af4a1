package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"bondingCurve/internal/fixedpoint"
)

type fakeBackend struct {
	sent     []*types.Transaction
	sendErr  error
	balance  *big.Int
	decimals uint8
	calls    map[string]int
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	erc20, err := getERC20ABI()
	if err != nil {
		return nil, err
	}
	for name, method := range erc20.Methods {
		if !bytes.Equal(msg.Data[:4], method.ID) {
			continue
		}
		if f.calls == nil {
			f.calls = map[string]int{}
		}
		f.calls[name]++
		switch name {
		case "balanceOf":
			return method.Outputs.Pack(f.balance)
		case "decimals":
			return method.Outputs.Pack(f.decimals)
		}
	}
	return nil, errors.New("unexpected call")
}

type rpcError struct{ msg string }

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return -32000 }

func signedPayload(t *testing.T) ([]byte, common.Hash) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	chainID := big.NewInt(56)
	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	}), types.LatestSignerForChainID(chainID), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	payload, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload, tx.Hash()
}

func TestSubmitReturnsTransactionHash(t *testing.T) {
	fake := &fakeBackend{}
	c := newClient(fake)
	payload, hash := signedPayload(t)

	ref, err := c.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ref != hash.Hex() {
		t.Fatalf("ref = %s, want %s", ref, hash.Hex())
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d transactions", len(fake.sent))
	}
}

func TestSubmitTreatsKnownTransactionAsSuccess(t *testing.T) {
	fake := &fakeBackend{sendErr: rpcError{msg: "already known"}}
	c := newClient(fake)
	payload, hash := signedPayload(t)

	ref, err := c.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ref != hash.Hex() {
		t.Fatalf("ref = %s, want %s", ref, hash.Hex())
	}
}

func TestSubmitErrors(t *testing.T) {
	c := newClient(&fakeBackend{sendErr: rpcError{msg: "nonce too low"}})
	payload, _ := signedPayload(t)

	if _, err := c.Submit(context.Background(), payload); err == nil {
		t.Fatalf("expected send error")
	}
	if _, err := c.Submit(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := c.Submit(context.Background(), []byte{0x02, 0xff}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestHolderBalanceRescalesDecimals(t *testing.T) {
	fake := &fakeBackend{balance: big.NewInt(2_500_000), decimals: 6}
	c := newClient(fake)
	asset := "0x1111111111111111111111111111111111111111"
	holder := "0x3333333333333333333333333333333333333333"

	for i := 0; i < 2; i++ {
		bal, err := c.HolderBalance(context.Background(), asset, holder)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if bal != fixedpoint.MustParse("2.5") {
			t.Fatalf("balance = %s, want 2.5", bal)
		}
	}
	if fake.calls["decimals"] != 1 {
		t.Fatalf("decimals looked up %d times, want cached after first", fake.calls["decimals"])
	}

	if _, err := c.HolderBalance(context.Background(), "policy.asset", holder); err == nil {
		t.Fatalf("expected error for non-address asset")
	}
}

func TestRescale(t *testing.T) {
	if got := rescale(big.NewInt(123), 18); got.Int64() != 123 {
		t.Fatalf("18 decimals changed value: %s", got)
	}
	if got := rescale(big.NewInt(123_000), 21); got.Int64() != 123 {
		t.Fatalf("21 decimals: %s", got)
	}
}

func TestGetChainID(t *testing.T) {
	c := newClient(&fakeBackend{})
	id, err := c.GetChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Int64() != 56 {
		t.Fatalf("chain id = %s, want 56", id)
	}
}

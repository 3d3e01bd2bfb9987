package escrow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

type fakeWallet struct {
	addr      common.Address
	connected bool
}

func (w *fakeWallet) Current(ctx context.Context) (common.Address, error) {
	if !w.connected {
		return common.Address{}, errors.New("no connected account")
	}
	return w.addr, nil
}

type submittedCall struct {
	from   common.Address
	method string
	value  *big.Int
	args   []interface{}
}

// fakeBackend records submissions and enforces the withdrawal bound the
// contract would enforce.
type fakeBackend struct {
	calls         []submittedCall
	rentAvailable *big.Int
	err           error
}

func (b *fakeBackend) Transact(ctx context.Context, from common.Address, method string, value *big.Int, args ...interface{}) (common.Hash, error) {
	if b.err != nil {
		return common.Hash{}, b.err
	}
	if method == "withdrawRent" && b.rentAvailable != nil {
		amount := args[1].(*big.Int)
		if amount.Cmp(b.rentAvailable) > 0 {
			return common.Hash{}, &Error{Kind: KindPreconditionFailed, Op: "chain.Transact", Err: errors.New("execution reverted: insufficient rent")}
		}
		b.rentAvailable = new(big.Int).Sub(b.rentAvailable, amount)
	}
	b.calls = append(b.calls, submittedCall{from: from, method: method, value: value, args: args})
	return common.HexToHash("0xabc"), nil
}

func newTestDispatcher(connected bool) (*Dispatcher, *fakeBackend, *fakeWallet) {
	backend := &fakeBackend{}
	wallet := &fakeWallet{addr: common.HexToAddress("0x954f16fcc97b41330adc085723d869cf823fcf1b"), connected: connected}
	return NewDispatcher(backend, wallet), backend, wallet
}

func TestDispatcher_WalletNotConnected(t *testing.T) {
	d, backend, _ := newTestDispatcher(false)

	_, err := d.FundSecurityDeposit(context.Background(), big.NewInt(1), big.NewInt(500))
	assert.Error(t, err)
	assert.True(t, IsKind(err, KindWalletNotConnected))
	// The precondition is local; nothing may reach the network.
	assert.Empty(t, backend.calls)
}

func TestDispatcher_FundSecurityDeposit_CarriesValue(t *testing.T) {
	d, backend, _ := newTestDispatcher(true)

	deposit := big.NewInt(500)
	_, err := d.FundSecurityDeposit(context.Background(), big.NewInt(42), deposit)
	assert.NoError(t, err)
	assert.Len(t, backend.calls, 1)
	call := backend.calls[0]
	assert.Equal(t, "fundSecurityDeposit", call.method)
	assert.Equal(t, 0, call.value.Cmp(deposit))
	assert.Equal(t, []interface{}{big.NewInt(42)}, call.args)
}

func TestDispatcher_DepositRent_CarriesValue(t *testing.T) {
	d, backend, _ := newTestDispatcher(true)

	rent := big.NewInt(1000)
	_, err := d.DepositRent(context.Background(), big.NewInt(42), rent)
	assert.NoError(t, err)
	assert.Len(t, backend.calls, 1)
	assert.Equal(t, "depositRent", backend.calls[0].method)
	assert.Equal(t, 0, backend.calls[0].value.Cmp(rent))
}

func TestDispatcher_CreateLease_Args(t *testing.T) {
	d, backend, wallet := newTestDispatcher(true)

	leaseID := big.NewInt(7)
	tenant := common.HexToAddress("0xafC65d5831682d1bD4998F1aA798d8e60B9afd00")
	_, err := d.CreateLease(context.Background(), leaseID, tenant, big.NewInt(100), big.NewInt(50), 1735689600)
	assert.NoError(t, err)
	assert.Len(t, backend.calls, 1)
	call := backend.calls[0]
	assert.Equal(t, "createLease", call.method)
	assert.Equal(t, wallet.addr, call.from)
	assert.Nil(t, call.value)
	assert.Equal(t, []interface{}{leaseID, tenant, big.NewInt(100), big.NewInt(50), big.NewInt(1735689600)}, call.args)
}

func TestDispatcher_WithdrawRent_Bound(t *testing.T) {
	d, backend, _ := newTestDispatcher(true)
	backend.rentAvailable = big.NewInt(300)

	_, err := d.WithdrawRent(context.Background(), big.NewInt(1), big.NewInt(301))
	assert.Error(t, err)
	assert.True(t, IsKind(err, KindPreconditionFailed))

	_, err = d.WithdrawRent(context.Background(), big.NewInt(1), big.NewInt(300))
	assert.NoError(t, err)
	assert.Equal(t, "0", backend.rentAvailable.String())
}

func TestDispatcher_UnclassifiedBackendError(t *testing.T) {
	d, backend, _ := newTestDispatcher(true)
	backend.err = errors.New("connection refused")

	_, err := d.EndLease(context.Background(), big.NewInt(1))
	assert.Error(t, err)
	assert.True(t, IsKind(err, KindNetworkRejected))
}

func TestDispatcher_NegativeValueRejected(t *testing.T) {
	d, backend, _ := newTestDispatcher(true)

	_, err := d.DepositRent(context.Background(), big.NewInt(1), big.NewInt(-5))
	assert.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidAmount))
	assert.Empty(t, backend.calls)
}

// Package chain is the go-ethereum implementation of the escrow contract
// interfaces: view calls for the Reader and signed transactions for the
// Dispatcher.
package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/model"
)

// leaseContractABI is the published interface of the deployed escrow
// contract. The "tennant" spelling is the contract's own and must match it.
const leaseContractABI = `[
  {"type":"function","name":"createLease","stateMutability":"nonpayable","inputs":[{"name":"leaseId","type":"uint256"},{"name":"tennant","type":"address"},{"name":"monthlyRent","type":"uint256"},{"name":"securityDeposit","type":"uint256"},{"name":"startDate","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"fundSecurityDeposit","stateMutability":"payable","inputs":[{"name":"leaseId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"depositRent","stateMutability":"payable","inputs":[{"name":"leaseId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdrawRent","stateMutability":"nonpayable","inputs":[{"name":"leaseId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"returnSecurityDeposit","stateMutability":"nonpayable","inputs":[{"name":"leaseId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"editLease","stateMutability":"nonpayable","inputs":[{"name":"leaseId","type":"uint256"},{"name":"newMonthlyRent","type":"uint256"},{"name":"newSecurityDeposit","type":"uint256"},{"name":"newStartDate","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"endLease","stateMutability":"nonpayable","inputs":[{"name":"leaseId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getLeasesByTennant","stateMutability":"view","inputs":[{"name":"tennant","type":"address"}],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"leaseId","type":"uint256"},{"name":"tennant","type":"address"},{"name":"subletter","type":"address"},{"name":"startDate","type":"uint256"},{"name":"paymentTimestamps","type":"uint256[]"},{"name":"monthlyRent","type":"uint256"},{"name":"rentAvailableToWithdraw","type":"uint256"},{"name":"securityDeposit","type":"uint256"},{"name":"depositHeld","type":"uint256"},{"name":"isActive","type":"bool"}]}]},
  {"type":"function","name":"getLeasesByLandOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"leaseId","type":"uint256"},{"name":"tennant","type":"address"},{"name":"subletter","type":"address"},{"name":"startDate","type":"uint256"},{"name":"paymentTimestamps","type":"uint256[]"},{"name":"monthlyRent","type":"uint256"},{"name":"rentAvailableToWithdraw","type":"uint256"},{"name":"securityDeposit","type":"uint256"},{"name":"depositHeld","type":"uint256"},{"name":"isActive","type":"bool"}]}]}
]`

// chainLease matches the contract's lease tuple field for field.
type chainLease struct {
	LeaseId                 *big.Int
	Tennant                 common.Address
	Subletter               common.Address
	StartDate               *big.Int
	PaymentTimestamps       []*big.Int
	MonthlyRent             *big.Int
	RentAvailableToWithdraw *big.Int
	SecurityDeposit         *big.Int
	DepositHeld             *big.Int
	IsActive                bool
}

// Backend talks to one escrow contract on one network. The contract address
// and chain are fixed configuration, not user input.
type Backend struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	account  *Account
	chainID  *big.Int
}

// Dial connects to the RPC endpoint and binds the escrow contract.
func Dial(ctx context.Context, rpcURL string, contract common.Address, account *Account) (*Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(leaseContractABI))
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return &Backend{
		client:   client,
		abi:      parsed,
		contract: contract,
		account:  account,
		chainID:  chainID,
	}, nil
}

func (b *Backend) Close() {
	b.client.Close()
}

// Transact packs, signs and submits a state-changing call from the currently
// connected account.
func (b *Backend) Transact(ctx context.Context, from common.Address, method string, value *big.Int, args ...interface{}) (common.Hash, error) {
	op := "chain.Transact"
	key, err := b.account.key(from)
	if err != nil {
		return common.Hash{}, &escrow.Error{Kind: escrow.KindWalletNotConnected, Op: op, Err: err}
	}
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, escrow.Errorf(escrow.KindNetworkRejected, op, "pack %s: %v", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, classifyRPC(op, err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, classifyRPC(op, err)
	}
	// Chain-side precondition failures (role or state mismatch) surface as
	// reverts during estimation.
	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &b.contract,
		Value:    value,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, classifyRPC(op, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &b.contract,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), key)
	if err != nil {
		return common.Hash{}, classifyRPC(op, err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classifyRPC(op, err)
	}
	return signed.Hash(), nil
}

// LeasesByTenant returns all leases where the account is the tenant.
func (b *Backend) LeasesByTenant(ctx context.Context, tenant common.Address) ([]model.Lease, error) {
	return b.leasesBy(ctx, "getLeasesByTennant", tenant)
}

// LeasesByOwner returns all leases where the account is the owner.
func (b *Backend) LeasesByOwner(ctx context.Context, owner common.Address) ([]model.Lease, error) {
	return b.leasesBy(ctx, "getLeasesByLandOwner", owner)
}

func (b *Backend) leasesBy(ctx context.Context, method string, account common.Address) ([]model.Lease, error) {
	op := "chain." + method
	data, err := b.abi.Pack(method, account)
	if err != nil {
		return nil, escrow.Errorf(escrow.KindNetworkRejected, op, "pack: %v", err)
	}
	res, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.contract, Data: data}, nil)
	if err != nil {
		return nil, classifyRPC(op, err)
	}
	out, err := b.abi.Unpack(method, res)
	if err != nil {
		return nil, escrow.Errorf(escrow.KindNetworkRejected, op, "unpack: %v", err)
	}
	raw := *abi.ConvertType(out[0], new([]chainLease)).(*[]chainLease)

	leases := make([]model.Lease, 0, len(raw))
	for _, l := range raw {
		leases = append(leases, model.Lease{
			LeaseID:                 l.LeaseId,
			Tenant:                  l.Tennant,
			Subletter:               l.Subletter,
			StartDate:               l.StartDate,
			PaymentTimestamps:       l.PaymentTimestamps,
			MonthlyRent:             l.MonthlyRent,
			RentAvailableToWithdraw: l.RentAvailableToWithdraw,
			SecurityDeposit:         l.SecurityDeposit,
			DepositHeld:             l.DepositHeld,
			IsActive:                l.IsActive,
		})
	}
	return leases, nil
}

// classifyRPC maps RPC failures onto the escrow taxonomy: reverts are
// chain-side precondition failures, signer refusals are user rejections,
// everything else is a transport problem.
func classifyRPC(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		return &escrow.Error{Kind: escrow.KindPreconditionFailed, Op: op, Err: err}
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "rejected by user"):
		return &escrow.Error{Kind: escrow.KindUserRejected, Op: op, Err: err}
	default:
		return &escrow.Error{Kind: escrow.KindNetworkRejected, Op: op, Err: err}
	}
}

// Package escrow drives the on-chain lease escrow contract: the Dispatcher
// is the single choke point for state-changing calls and the Reader
// reconstructs custody state for an account.
package escrow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/subletsquare/lease-escrow-service/internal/monitoring"
)

// Wallet reports the currently connected signing account. The account is
// externally managed and may change between calls, so implementations must
// return the live account, never one captured earlier.
type Wallet interface {
	Current(ctx context.Context) (common.Address, error)
}

// ContractBackend submits a state-changing call to the escrow contract and
// returns the transaction hash. Implementations classify chain rejections
// with the Kind taxonomy of this package where they can.
type ContractBackend interface {
	Transact(ctx context.Context, from common.Address, method string, value *big.Int, args ...interface{}) (common.Hash, error)
}

// Dispatcher issues all state-changing escrow calls. It mutates no local
// state; callers observe effects by re-querying the Reader.
type Dispatcher struct {
	backend ContractBackend
	wallet  Wallet
}

func NewDispatcher(backend ContractBackend, wallet Wallet) *Dispatcher {
	return &Dispatcher{backend: backend, wallet: wallet}
}

// CreateLease records a new lease. All monetary arguments are base units,
// already converted by the units package; the dispatcher performs no unit
// inference.
func (d *Dispatcher) CreateLease(ctx context.Context, leaseID *big.Int, tenant common.Address, monthlyRent, securityDeposit *big.Int, startUnix int64) (common.Hash, error) {
	return d.submit(ctx, "createLease", nil, leaseID, tenant, monthlyRent, securityDeposit, big.NewInt(startUnix))
}

// FundSecurityDeposit pays the security deposit into escrow. The transaction
// value must exactly match the lease's deposit amount.
func (d *Dispatcher) FundSecurityDeposit(ctx context.Context, leaseID, deposit *big.Int) (common.Hash, error) {
	return d.submit(ctx, "fundSecurityDeposit", deposit, leaseID)
}

// DepositRent pays one month of rent into escrow.
func (d *Dispatcher) DepositRent(ctx context.Context, leaseID, rent *big.Int) (common.Hash, error) {
	return d.submit(ctx, "depositRent", rent, leaseID)
}

// WithdrawRent moves accumulated rent out of escrow to the owner.
func (d *Dispatcher) WithdrawRent(ctx context.Context, leaseID, amount *big.Int) (common.Hash, error) {
	return d.submit(ctx, "withdrawRent", nil, leaseID, amount)
}

// ReturnSecurityDeposit returns held deposit funds to the tenant.
func (d *Dispatcher) ReturnSecurityDeposit(ctx context.Context, leaseID, amount *big.Int) (common.Hash, error) {
	return d.submit(ctx, "returnSecurityDeposit", nil, leaseID, amount)
}

// EditLease overwrites the mutable lease terms. Only valid before payments
// activate the lease; the contract enforces that.
func (d *Dispatcher) EditLease(ctx context.Context, leaseID, newMonthlyRent, newSecurityDeposit *big.Int, newStartUnix int64) (common.Hash, error) {
	return d.submit(ctx, "editLease", nil, leaseID, newMonthlyRent, newSecurityDeposit, big.NewInt(newStartUnix))
}

// EndLease deactivates the lease.
func (d *Dispatcher) EndLease(ctx context.Context, leaseID *big.Int) (common.Hash, error) {
	return d.submit(ctx, "endLease", nil, leaseID)
}

func (d *Dispatcher) submit(ctx context.Context, method string, value *big.Int, args ...interface{}) (common.Hash, error) {
	op := "escrow." + method
	// The connected account is re-read at every dispatch; the user may have
	// switched accounts since the caller last looked.
	from, err := d.wallet.Current(ctx)
	if err != nil {
		monitoring.EscrowTransactions.WithLabelValues(method, "wallet_not_connected").Inc()
		return common.Hash{}, &Error{Kind: KindWalletNotConnected, Op: op, Err: err}
	}
	if value != nil && value.Sign() < 0 {
		return common.Hash{}, Errorf(KindInvalidAmount, op, "negative transaction value %s", value)
	}

	hash, err := d.backend.Transact(ctx, from, method, value, args...)
	if err != nil {
		monitoring.EscrowTransactions.WithLabelValues(method, "failed").Inc()
		return common.Hash{}, classify(op, err)
	}

	monitoring.EscrowTransactions.WithLabelValues(method, "submitted").Inc()
	log.Info().
		Str("method", method).
		Str("from", from.Hex()).
		Str("tx", hash.Hex()).
		Msg("Escrow transaction submitted")
	return hash, nil
}

// classify keeps backend-classified errors and folds everything else into
// NetworkRejected.
func classify(op string, err error) error {
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: KindNetworkRejected, Op: op, Err: err}
}

package escrow

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/subletsquare/lease-escrow-service/internal/model"
)

// Status labels derived from a lease's active flag, recomputed on every read.
const (
	StatusActive = "Lease Active"
	StatusEnded  = "Lease Ended"
)

// Action is the next dispatcher operation the UI should offer for a lease.
type Action string

const (
	// ActionFundDeposit: the security deposit is not fully funded yet. A
	// lease cannot meaningfully request rent before its deposit is funded,
	// so this outranks everything else.
	ActionFundDeposit Action = "fund_deposit"
	// ActionPayRent: deposit funded, no rent paid yet.
	ActionPayRent Action = "pay_rent"
	// ActionShowHistory: steady state, payments exist.
	ActionShowHistory Action = "show_history"
	// ActionNone: the lease has ended.
	ActionNone Action = "none"
)

// LeaseQuerier reads lease state from the chain.
type LeaseQuerier interface {
	LeasesByTenant(ctx context.Context, tenant common.Address) ([]model.Lease, error)
	LeasesByOwner(ctx context.Context, owner common.Address) ([]model.Lease, error)
}

// Reader reconstructs the custody state of all leases tied to an account.
// Reads are side-effect free and may be abandoned at any time.
type Reader struct {
	q LeaseQuerier
}

func NewReader(q LeaseQuerier) *Reader {
	return &Reader{q: q}
}

// LeasesByTenant returns every lease where the account is the tenant. An
// absent address means "not yet connected" and yields an empty result, not
// an error.
func (r *Reader) LeasesByTenant(ctx context.Context, tenant common.Address) ([]model.Lease, error) {
	if tenant == (common.Address{}) {
		return nil, nil
	}
	return r.q.LeasesByTenant(ctx, tenant)
}

// LeasesByOwner returns every lease where the account is the owner.
func (r *Reader) LeasesByOwner(ctx context.Context, owner common.Address) ([]model.Lease, error) {
	if owner == (common.Address{}) {
		return nil, nil
	}
	return r.q.LeasesByOwner(ctx, owner)
}

// StatusLabel is a pure function of the lease's active flag.
func StatusLabel(l model.Lease) string {
	if l.IsActive {
		return StatusActive
	}
	return StatusEnded
}

// Payments expands each lease's payment-timestamp sequence into a flat list
// of payment records, in timestamp order as returned by the chain.
func Payments(leases []model.Lease) []model.PaymentItem {
	var items []model.PaymentItem
	for _, l := range leases {
		id := "?"
		if l.LeaseID != nil {
			id = l.LeaseID.String()
		}
		for idx, ts := range l.PaymentTimestamps {
			var date time.Time
			if ts != nil {
				date = time.Unix(ts.Int64(), 0).UTC()
			}
			items = append(items, model.PaymentItem{
				ID:       fmt.Sprintf("%s-%d", id, idx),
				LeaseID:  id,
				Date:     date,
				Amount:   l.MonthlyRent,
				Property: "Lease #" + id,
				Status:   StatusLabel(l),
			})
		}
	}
	return items
}

// NextAction evaluates the gating ladder for a lease, strictly in priority
// order: deposit funding before first rent before steady-state history.
func NextAction(l model.Lease) Action {
	if !l.IsActive {
		return ActionNone
	}
	if l.SecurityDeposit != nil && l.SecurityDeposit.Sign() > 0 {
		held := l.DepositHeld
		if held == nil {
			held = new(big.Int)
		}
		if held.Cmp(l.SecurityDeposit) < 0 {
			return ActionFundDeposit
		}
	}
	if len(l.PaymentTimestamps) == 0 {
		return ActionPayRent
	}
	return ActionShowHistory
}

// WaitForLease polls the owner's leases until one with the given key shows
// up, or attempts are exhausted. Dispatched writes are not reflected in the
// very next read, so callers needing the created lease must poll with a
// bound rather than assume immediacy.
func (r *Reader) WaitForLease(ctx context.Context, owner common.Address, leaseID *big.Int, attempts int, interval time.Duration) (*model.Lease, error) {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}
		leases, err := r.LeasesByOwner(ctx, owner)
		if err != nil {
			continue
		}
		for i := range leases {
			if leases[i].LeaseID != nil && leases[i].LeaseID.Cmp(leaseID) == 0 {
				return &leases[i], nil
			}
		}
	}
	return nil, fmt.Errorf("lease %s not observed after %d attempts", leaseID, attempts)
}

package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Agreement is the off-chain sublease contract as stored by the marketplace
// backend. Monetary amounts are integer currency subunits (cents).
type Agreement struct {
	ID              string `json:"_id"`
	ListingID       string `json:"listingId"`
	ListingTitle    string `json:"listingTitle"`
	Owner           string `json:"owner"`
	Tenant          string `json:"tenant"`
	Rent            int64  `json:"rent"`
	SecurityDeposit int64  `json:"securityDeposit"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	OwnerSigned     bool   `json:"ownerSigned"`
	TenantSigned    bool   `json:"tenantSigned"`
}

// FullySigned reports whether both parties have signed. This is the single
// precondition for on-chain activation.
func (a *Agreement) FullySigned() bool {
	return a.OwnerSigned && a.TenantSigned
}

// Start parses the agreement's start date. The backend stores dates either as
// plain calendar dates or full RFC 3339 timestamps.
func (a *Agreement) Start() (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, a.StartDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable start date %q", a.StartDate)
}

// Lease mirrors the escrow contract's lease record. All monetary amounts are
// on-chain base units; the contract owns this state and the gateway only
// reads it.
type Lease struct {
	LeaseID                 *big.Int       `json:"leaseId"`
	Tenant                  common.Address `json:"tenant"`
	Subletter               common.Address `json:"subletter"`
	StartDate               *big.Int       `json:"startDate"`
	PaymentTimestamps       []*big.Int     `json:"paymentTimestamps"`
	MonthlyRent             *big.Int       `json:"monthlyRent"`
	RentAvailableToWithdraw *big.Int       `json:"rentAvailableToWithdraw"`
	SecurityDeposit         *big.Int       `json:"securityDeposit"`
	DepositHeld             *big.Int       `json:"depositHeld"`
	IsActive                bool           `json:"isActive"`
}

// PaymentItem is one rent payment derived from a lease's payment timestamp
// sequence. It has no lifecycle of its own.
type PaymentItem struct {
	ID       string    `json:"id"`
	LeaseID  string    `json:"leaseId"`
	Date     time.Time `json:"date"`
	Amount   *big.Int  `json:"amount"`
	Property string    `json:"property"`
	Status   string    `json:"status"`
}

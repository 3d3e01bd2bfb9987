package activation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/leasekey"
	"github.com/subletsquare/lease-escrow-service/internal/model"
	"github.com/subletsquare/lease-escrow-service/internal/store"
)

type fakeResolver struct {
	addrs map[string]common.Address
}

func (r *fakeResolver) WalletAddress(ctx context.Context, userID string) (common.Address, error) {
	addr, ok := r.addrs[userID]
	if !ok {
		return common.Address{}, escrow.Errorf(escrow.KindTenantWalletMissing, "directory.WalletAddress",
			"user %s has no wallet address on file", userID)
	}
	return addr, nil
}

type createCall struct {
	leaseID   *big.Int
	tenant    common.Address
	rent      *big.Int
	deposit   *big.Int
	startUnix int64
}

// fakeCreator mimics the contract's existence check: a second createLease
// with a key it has already seen fails.
type fakeCreator struct {
	calls    []createCall
	existing map[string]bool
	err      error
}

func (c *fakeCreator) CreateLease(ctx context.Context, leaseID *big.Int, tenant common.Address, monthlyRent, securityDeposit *big.Int, startUnix int64) (common.Hash, error) {
	if c.err != nil {
		return common.Hash{}, c.err
	}
	if c.existing == nil {
		c.existing = make(map[string]bool)
	}
	if c.existing[leaseID.String()] {
		return common.Hash{}, &escrow.Error{Kind: escrow.KindPreconditionFailed, Op: "chain.Transact",
			Err: errors.New("execution reverted: lease already exists")}
	}
	c.existing[leaseID.String()] = true
	c.calls = append(c.calls, createCall{leaseID: leaseID, tenant: tenant, rent: monthlyRent, deposit: securityDeposit, startUnix: startUnix})
	return common.HexToHash("0xabc"), nil
}

type memoryAudit struct {
	records map[string]*store.ActivationRecord
}

func (m *memoryAudit) Create(ctx context.Context, rec *store.ActivationRecord) error {
	if m.records == nil {
		m.records = make(map[string]*store.ActivationRecord)
	}
	rec.ID = uuid.New()
	m.records[rec.AgreementID] = rec
	return nil
}

func (m *memoryAudit) GetByAgreementID(ctx context.Context, agreementID string) (*store.ActivationRecord, error) {
	return m.records[agreementID], nil
}

func (m *memoryAudit) SetStatus(ctx context.Context, id uuid.UUID, status, txHash string) error {
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Status = status
			rec.TxHash = txHash
		}
	}
	return nil
}

var tenantAddr = common.HexToAddress("0xafC65d5831682d1bD4998F1aA798d8e60B9afd00")

func signedAgreement() *model.Agreement {
	return &model.Agreement{
		ID:              "ag1",
		Owner:           "owner1",
		Tenant:          "tenant1",
		Rent:            120000,
		SecurityDeposit: 50000,
		StartDate:       "2025-01-01",
		OwnerSigned:     true,
		TenantSigned:    true,
	}
}

func newTestOrchestrator() (*Orchestrator, *fakeCreator) {
	creator := &fakeCreator{}
	resolver := &fakeResolver{addrs: map[string]common.Address{"tenant1": tenantAddr}}
	return NewOrchestrator(resolver, creator, nil), creator
}

func TestActivate_HappyPath(t *testing.T) {
	orch, creator := newTestOrchestrator()

	res, err := orch.Activate(context.Background(), signedAgreement())
	assert.NoError(t, err)
	assert.NotNil(t, res)
	assert.Len(t, creator.calls, 1)

	call := creator.calls[0]
	expectedKey, err := leasekey.Derive("ag1")
	assert.NoError(t, err)
	assert.Equal(t, 0, expectedKey.Cmp(call.leaseID))
	assert.Equal(t, 0, expectedKey.Cmp(res.LeaseKey))
	assert.Equal(t, tenantAddr, call.tenant)
	assert.Equal(t, tenantAddr, res.Tenant)

	// 1200.00 and 500.00 currency units, scaled to 18-decimal base units.
	assert.Equal(t, "1200000000000000000000", call.rent.String())
	assert.Equal(t, "500000000000000000000", call.deposit.String())
	assert.Equal(t, int64(1735689600), call.startUnix)
}

func TestActivate_Idempotent(t *testing.T) {
	orch, creator := newTestOrchestrator()

	_, err := orch.Activate(context.Background(), signedAgreement())
	assert.NoError(t, err)

	// The same agreement derives the same key, which the contract rejects.
	_, err = orch.Activate(context.Background(), signedAgreement())
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindPreconditionFailed))
	assert.Len(t, creator.calls, 1)
}

func TestActivate_AuditBlocksRepeat(t *testing.T) {
	creator := &fakeCreator{}
	resolver := &fakeResolver{addrs: map[string]common.Address{"tenant1": tenantAddr}}
	audit := &memoryAudit{}
	orch := NewOrchestrator(resolver, creator, audit)

	res, err := orch.Activate(context.Background(), signedAgreement())
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.ActivationID)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), audit.records["ag1"].TxHash)
	assert.Equal(t, store.ActivationPending, audit.records["ag1"].Status)

	_, err = orch.Activate(context.Background(), signedAgreement())
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindPreconditionFailed))
	// The repeat is refused before any chain call.
	assert.Len(t, creator.calls, 1)
}

func TestActivate_NotFullySigned(t *testing.T) {
	orch, creator := newTestOrchestrator()

	ag := signedAgreement()
	ag.TenantSigned = false
	_, err := orch.Activate(context.Background(), ag)
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindInvalidAgreement))
	assert.Empty(t, creator.calls)

	_, err = orch.Activate(context.Background(), nil)
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindInvalidAgreement))
}

func TestActivate_TenantWalletMissing(t *testing.T) {
	orch, creator := newTestOrchestrator()

	ag := signedAgreement()
	ag.Tenant = "tenant-without-wallet"
	_, err := orch.Activate(context.Background(), ag)
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindTenantWalletMissing))
	assert.Empty(t, creator.calls)
}

func TestActivate_NegativeRent(t *testing.T) {
	orch, creator := newTestOrchestrator()

	ag := signedAgreement()
	ag.Rent = -1
	_, err := orch.Activate(context.Background(), ag)
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindInvalidAmount))
	assert.Empty(t, creator.calls)
}

func TestActivate_BadStartDate(t *testing.T) {
	orch, creator := newTestOrchestrator()

	ag := signedAgreement()
	ag.StartDate = "next tuesday"
	_, err := orch.Activate(context.Background(), ag)
	assert.Error(t, err)
	assert.True(t, escrow.IsKind(err, escrow.KindInvalidAgreement))
	assert.Empty(t, creator.calls)
}

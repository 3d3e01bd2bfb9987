// Package activation converts one fully-signed off-chain agreement into
// exactly one on-chain lease.
package activation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/leasekey"
	"github.com/subletsquare/lease-escrow-service/internal/model"
	"github.com/subletsquare/lease-escrow-service/internal/monitoring"
	"github.com/subletsquare/lease-escrow-service/internal/store"
	"github.com/subletsquare/lease-escrow-service/internal/units"
)

// WalletResolver resolves a user's on-chain address via the user directory.
type WalletResolver interface {
	WalletAddress(ctx context.Context, userID string) (common.Address, error)
}

// LeaseCreator submits the createLease transaction.
type LeaseCreator interface {
	CreateLease(ctx context.Context, leaseID *big.Int, tenant common.Address, monthlyRent, securityDeposit *big.Int, startUnix int64) (common.Hash, error)
}

// AuditLog records activation attempts. Optional; a nil log disables
// auditing but not the contract-level idempotency guard.
type AuditLog interface {
	Create(ctx context.Context, rec *store.ActivationRecord) error
	GetByAgreementID(ctx context.Context, agreementID string) (*store.ActivationRecord, error)
	SetStatus(ctx context.Context, id uuid.UUID, status, txHash string) error
}

// Result describes a submitted activation.
type Result struct {
	ActivationID uuid.UUID      `json:"activationId"`
	LeaseKey     *big.Int       `json:"leaseKey"`
	Tenant       common.Address `json:"tenant"`
	TxHash       common.Hash    `json:"txHash"`
}

type Orchestrator struct {
	resolver WalletResolver
	creator  LeaseCreator
	audit    AuditLog
}

func NewOrchestrator(resolver WalletResolver, creator LeaseCreator, audit AuditLog) *Orchestrator {
	return &Orchestrator{resolver: resolver, creator: creator, audit: audit}
}

// Activate runs the activation workflow. Every precondition is checked, in
// order, before any chain call; the derivation being pure makes a retry
// always safe, since a second createLease for the same key is rejected by
// the contract's existence check.
func (o *Orchestrator) Activate(ctx context.Context, ag *model.Agreement) (*Result, error) {
	const op = "activation.Activate"
	if ag == nil {
		return nil, escrow.Errorf(escrow.KindInvalidAgreement, op, "agreement is nil")
	}
	if !ag.FullySigned() {
		return nil, escrow.Errorf(escrow.KindInvalidAgreement, op, "agreement %s is not signed by both parties", ag.ID)
	}

	key, err := leasekey.Derive(ag.ID)
	if err != nil {
		return nil, err
	}
	rentWei, err := units.ToBaseUnits(ag.Rent)
	if err != nil {
		return nil, err
	}
	depositWei, err := units.ToBaseUnits(ag.SecurityDeposit)
	if err != nil {
		return nil, err
	}
	start, err := ag.Start()
	if err != nil {
		return nil, escrow.Errorf(escrow.KindInvalidAgreement, op, "agreement %s: %v", ag.ID, err)
	}

	tenantAddr, err := o.resolver.WalletAddress(ctx, ag.Tenant)
	if err != nil {
		return nil, err
	}

	rec := &store.ActivationRecord{
		AgreementID: ag.ID,
		LeaseKey:    key.String(),
		Status:      store.ActivationPending,
	}
	if o.audit != nil {
		if existing, err := o.audit.GetByAgreementID(ctx, ag.ID); err == nil && existing != nil {
			return nil, escrow.Errorf(escrow.KindPreconditionFailed, op,
				"agreement %s was already activated (%s)", ag.ID, existing.Status)
		}
		if err := o.audit.Create(ctx, rec); err != nil {
			log.Error().Err(err).Str("agreement_id", ag.ID).Msg("Failed to record activation attempt")
		}
	}

	txHash, err := o.creator.CreateLease(ctx, key, tenantAddr, rentWei, depositWei, start.Unix())
	if err != nil {
		monitoring.Activations.WithLabelValues("failed").Inc()
		if o.audit != nil && rec.ID != uuid.Nil {
			if logErr := o.audit.SetStatus(ctx, rec.ID, store.ActivationFailed, ""); logErr != nil {
				log.Error().Err(logErr).Str("agreement_id", ag.ID).Msg("Failed to mark activation failed")
			}
		}
		return nil, err
	}

	if o.audit != nil && rec.ID != uuid.Nil {
		if err := o.audit.SetStatus(ctx, rec.ID, store.ActivationPending, txHash.Hex()); err != nil {
			log.Error().Err(err).Str("agreement_id", ag.ID).Msg("Failed to record activation tx hash")
		}
	}

	monitoring.Activations.WithLabelValues("submitted").Inc()
	log.Info().
		Str("agreement_id", ag.ID).
		Str("lease_key", key.String()).
		Str("tenant", tenantAddr.Hex()).
		Str("tx", txHash.Hex()).
		Msg("Lease activation submitted")

	return &Result{ActivationID: rec.ID, LeaseKey: key, Tenant: tenantAddr, TxHash: txHash}, nil
}

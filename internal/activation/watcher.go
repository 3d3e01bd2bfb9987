package activation

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/monitoring"
	"github.com/subletsquare/lease-escrow-service/internal/store"
)

// CacheInvalidator drops cached reader results for an account.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, address string)
}

// Confirmation is one submitted createLease awaiting on-chain visibility.
type Confirmation struct {
	ActivationID uuid.UUID
	Owner        common.Address
	LeaseKey     *big.Int
	TxHash       common.Hash
}

// Watcher confirms lease creations in the background. Submission is distinct
// from confirmation: the watcher polls the reader with bounded attempts and
// records the outcome, it never re-submits the write.
type Watcher struct {
	reader        *escrow.Reader
	audit         AuditLog
	cache         CacheInvalidator
	confirmations chan Confirmation // Channel for background confirmation
	attempts      int
	interval      time.Duration
}

// NewWatcher creates a new Watcher
func NewWatcher(reader *escrow.Reader, audit AuditLog, cache CacheInvalidator, attempts int, interval time.Duration) *Watcher {
	w := &Watcher{
		reader:        reader,
		audit:         audit,
		cache:         cache,
		confirmations: make(chan Confirmation, 10),
		attempts:      attempts,
		interval:      interval,
	}
	go w.startConfirmationWorker()
	return w
}

// startConfirmationWorker runs the background job for confirmations
func (w *Watcher) startConfirmationWorker() {
	for c := range w.confirmations {
		log.Info().Str("lease_key", c.LeaseKey.String()).Msg("Waiting for lease to appear on chain")
		if err := w.confirm(c); err != nil {
			log.Error().Err(err).Str("lease_key", c.LeaseKey.String()).Msg("Lease confirmation failed")
		}
	}
}

func (w *Watcher) confirm(c Confirmation) error {
	ctx := context.Background()
	started := time.Now()

	_, err := w.reader.WaitForLease(ctx, c.Owner, c.LeaseKey, w.attempts, w.interval)
	if err != nil {
		monitoring.Activations.WithLabelValues("unconfirmed").Inc()
		monitoring.Alert("lease activation unconfirmed", map[string]string{
			"lease_key": c.LeaseKey.String(),
			"tx":        c.TxHash.Hex(),
		})
		if w.audit != nil && c.ActivationID != uuid.Nil {
			return w.audit.SetStatus(ctx, c.ActivationID, store.ActivationFailed, c.TxHash.Hex())
		}
		return err
	}

	monitoring.ConfirmationWait.Observe(time.Since(started).Seconds())
	monitoring.Activations.WithLabelValues("confirmed").Inc()
	if w.cache != nil {
		w.cache.Invalidate(ctx, c.Owner.Hex())
	}
	if w.audit != nil && c.ActivationID != uuid.Nil {
		return w.audit.SetStatus(ctx, c.ActivationID, store.ActivationConfirmed, c.TxHash.Hex())
	}
	return nil
}

// Enqueue adds a submitted activation to the confirmation queue
func (w *Watcher) Enqueue(c Confirmation) {
	w.confirmations <- c
}

// Package leasekey derives on-chain lease identifiers from off-chain
// agreement ids. The derivation is a pure function of the id, so activating
// the same agreement twice always targets the same on-chain key and the
// contract's existence check can reject the duplicate.
package leasekey

import (
	"crypto/sha256"
	"math/big"
	"strings"

	"github.com/subletsquare/lease-escrow-service/internal/escrow"
)

// Derive maps an agreement id to its uint256 lease key: the SHA-256 digest of
// the trimmed id bytes as an unsigned big integer. Collisions are
// cryptographically negligible.
func Derive(agreementID string) (*big.Int, error) {
	id := strings.TrimSpace(agreementID)
	if id == "" {
		return nil, escrow.Errorf(escrow.KindInvalidAgreement, "leasekey.Derive", "agreement id is empty")
	}
	sum := sha256.Sum256([]byte(id))
	return new(big.Int).SetBytes(sum[:]), nil
}

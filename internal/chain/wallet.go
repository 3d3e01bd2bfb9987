package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/subletsquare/lease-escrow-service/internal/crypto"
)

// Account models the externally managed signing account: process-wide,
// read-mostly, single writer (connect/disconnect), many readers. Every
// dispatch re-reads it, so swapping the key between calls behaves like a
// user switching wallets.
type Account struct {
	mu  sync.RWMutex
	prv *ecdsa.PrivateKey
}

func NewAccount() *Account {
	return &Account{}
}

// Connect installs the signing key, replacing any previous one.
func (a *Account) Connect(key *ecdsa.PrivateKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prv = key
}

// ConnectHex installs a signing key from its hex encoding.
func (a *Account) ConnectHex(hexKey string) error {
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return fmt.Errorf("invalid signing key: %w", err)
	}
	a.Connect(key)
	return nil
}

// Disconnect drops the signing key; subsequent dispatches fail fast.
func (a *Account) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prv = nil
}

// Current returns the presently connected address.
func (a *Account) Current(ctx context.Context) (common.Address, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.prv == nil {
		return common.Address{}, errors.New("no connected account")
	}
	return ethcrypto.PubkeyToAddress(a.prv.PublicKey), nil
}

// key returns the signing key for from, guarding against the account having
// changed between the precondition check and signing.
func (a *Account) key(from common.Address) (*ecdsa.PrivateKey, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.prv == nil {
		return nil, errors.New("no connected account")
	}
	if ethcrypto.PubkeyToAddress(a.prv.PublicKey) != from {
		return nil, fmt.Errorf("connected account changed, expected %s", from.Hex())
	}
	return a.prv, nil
}

// keyFile is the on-disk format of an encrypted operator key.
type keyFile struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

// SaveKeyFile writes the hex signing key to path, AES-GCM encrypted at rest.
func SaveKeyFile(path, hexKey string) error {
	if _, err := ethcrypto.HexToECDSA(hexKey); err != nil {
		return fmt.Errorf("invalid signing key: %w", err)
	}
	ciphertext, nonce, err := crypto.Encrypt(hexKey)
	if err != nil {
		return err
	}
	data, err := json.Marshal(keyFile{Ciphertext: ciphertext, Nonce: nonce})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ConnectFromFile loads an encrypted key file and connects the account.
func (a *Account) ConnectFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("malformed key file %s: %w", path, err)
	}
	hexKey, err := crypto.Decrypt(kf.Ciphertext, kf.Nonce)
	if err != nil {
		return fmt.Errorf("decrypt key file %s: %w", path, err)
	}
	return a.ConnectHex(hexKey)
}

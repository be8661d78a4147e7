// Package access implements the key-management side of the paywall: deriving
// content keys from wallet signatures, sealing content references with an
// authenticated cipher and caching derived keys locally. Nothing in this
// package is consulted for authorization; the ledger's purchase records are.
package access

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"revenueos/crypto"
)

var (
	// ErrIdentityUnavailable indicates no signer is connected for the identity.
	ErrIdentityUnavailable = errors.New("access: identity unavailable")
	// ErrUserDeclined indicates the signer explicitly refused to sign the key
	// message. Callers must not retry automatically; the refusal is a choice.
	ErrUserDeclined = errors.New("access: signature declined")
	// ErrInvalidKey indicates a key string that does not decode to 32 bytes.
	ErrInvalidKey = errors.New("access: invalid key encoding")
)

// KeySize is the symmetric key width: the sha256 digest of a signature.
const KeySize = sha256.Size

// Key is a derived symmetric content key.
type Key [KeySize]byte

// String renders the key as lowercase hex, the form carried in share-URL
// fragments and the local cache.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey decodes the hex form produced by Key.String.
func ParseKey(s string) (Key, error) {
	var key Key
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != KeySize {
		return key, ErrInvalidKey
	}
	copy(key[:], raw)
	return key, nil
}

// Signer produces personal-sign signatures on behalf of one identity. Remote
// implementations surface ErrIdentityUnavailable when no wallet is connected
// and ErrUserDeclined when the holder rejects the prompt.
type Signer interface {
	Address() crypto.Address
	SignMessage(message []byte) ([]byte, error)
}

// KeyMessage builds the fixed, fully-disclosed message whose signature seeds
// the content key. The wording names the product, the link and the creator so
// a human approving the signature can see exactly what it authorizes; signing
// the same message always yields the same signature and therefore the same key.
func KeyMessage(creator crypto.Address, linkID uint64) string {
	return fmt.Sprintf("Base Revenue OS: Authorize encryption key for Link #%d created by %s", linkID, strings.ToLower(creator.String()))
}

// DeriveKey asks the signer to sign the key message for the given link and
// hashes the signature into a fixed-length key. No secret is persisted: the
// same identity and link id re-derive the same key at any time.
func DeriveKey(signer Signer, linkID uint64) (Key, error) {
	var key Key
	if signer == nil {
		return key, ErrIdentityUnavailable
	}
	message := KeyMessage(signer.Address(), linkID)
	signature, err := signer.SignMessage([]byte(message))
	if err != nil {
		if errors.Is(err, ErrUserDeclined) || errors.Is(err, ErrIdentityUnavailable) {
			return key, err
		}
		return key, fmt.Errorf("access: derive key: %w", err)
	}
	return Key(sha256.Sum256(signature)), nil
}

// WalletSigner signs with an in-process private key. It is the local
// counterpart of a connected wallet and never declines.
type WalletSigner struct {
	key *crypto.PrivateKey
}

// NewWalletSigner wraps a private key; nil keys yield a signer that reports
// ErrIdentityUnavailable.
func NewWalletSigner(key *crypto.PrivateKey) *WalletSigner {
	return &WalletSigner{key: key}
}

// Address implements Signer.
func (s *WalletSigner) Address() crypto.Address {
	if s == nil || s.key == nil {
		return crypto.Address{}
	}
	return s.key.PubKey().Address()
}

// SignMessage implements Signer.
func (s *WalletSigner) SignMessage(message []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, ErrIdentityUnavailable
	}
	return s.key.SignMessage(message)
}

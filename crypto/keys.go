package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable prefix carried by bech32 addresses.
type AddressPrefix string

// RVOPrefix identifies settlement-account addresses on the revenue ledger.
const RVOPrefix AddressPrefix = "rvo"

// AddressLength is the fixed identity width used throughout the ledger.
const AddressLength = 20

// Address represents a 20-byte ledger identity with its bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// MustNewAddress builds an address from a fixed-width byte array.
func MustNewAddress(b [AddressLength]byte) Address {
	return NewAddress(RVOPrefix, b[:])
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Array returns the identity as a fixed-width array for map keys and state.
func (a Address) Array() [AddressLength]byte {
	var out [AddressLength]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Equal reports whether two addresses carry the same identity bytes.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// SignMessage signs a human-readable message over the EIP-191 personal-sign
// digest. The secp256k1 nonce derivation is deterministic, so the same key and
// message always produce the same 65-byte signature.
func (k *PrivateKey) SignMessage(message []byte) ([]byte, error) {
	digest := accounts.TextHash(message)
	sig, err := ethcrypto.Sign(digest, k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig, nil
}

func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(RVOPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// RecoverMessageSigner returns the address that produced a personal-sign
// signature over the supplied message.
func RecoverMessageSigner(message, signature []byte) (Address, error) {
	if len(signature) != 65 {
		return Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}
	digest := accounts.TextHash(message)
	pubKey, err := ethcrypto.SigToPub(digest, signature)
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return NewAddress(RVOPrefix, ethcrypto.PubkeyToAddress(*pubKey).Bytes()), nil
}

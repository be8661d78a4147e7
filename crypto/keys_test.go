package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(RVOPrefix)) {
		t.Fatalf("address %q missing prefix %q", encoded, RVOPrefix)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip changed identity: %q vs %q", decoded.String(), encoded)
	}
	if decoded.Prefix() != RVOPrefix {
		t.Fatalf("prefix = %q, want %q", decoded.Prefix(), RVOPrefix)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "rvo1", "not-bech32", "rvo1qqqq"} {
		if _, err := DecodeAddress(raw); err == nil {
			t.Fatalf("decode accepted %q", raw)
		}
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if !restored.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("restored key derives a different address")
	}
}

func TestSignMessageDeterministic(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := []byte("authorize something specific")

	first, err := key.SignMessage(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := key.SignMessage(message)
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("signatures over the same message differ")
	}
	if len(first) != 65 {
		t.Fatalf("signature length = %d, want 65", len(first))
	}
}

func TestRecoverMessageSigner(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := []byte("prove ownership")
	signature, err := key.SignMessage(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recovered, err := RecoverMessageSigner(message, signature)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered.Equal(key.PubKey().Address()) {
		t.Fatalf("recovered %q, want %q", recovered.String(), key.PubKey().Address().String())
	}

	if _, err := RecoverMessageSigner(message, signature[:64]); err == nil {
		t.Fatalf("short signature accepted")
	}
	// Recovery over a different message yields some other identity, never the
	// original signer.
	if other, err := RecoverMessageSigner([]byte("different message"), signature); err == nil {
		if other.Equal(key.PubKey().Address()) {
			t.Fatalf("signature verified against a different message")
		}
	}
}

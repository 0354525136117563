package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestFromHexKeyAddress(t *testing.T) {
	s, err := FromHexKey(testKeyHex)
	if err != nil {
		t.Fatalf("from hex key failed: %v", err)
	}
	if s.Address() == "" || s.Address()[:2] != "0x" {
		t.Fatalf("unexpected address %q", s.Address())
	}

	prefixed, err := FromHexKey("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("from prefixed hex key failed: %v", err)
	}
	if prefixed.Address() != s.Address() {
		t.Fatal("0x prefix must not change the derived address")
	}
}

func TestSignRecoversSigner(t *testing.T) {
	s, err := FromHexKey(testKeyHex)
	if err != nil {
		t.Fatalf("from hex key failed: %v", err)
	}
	payload := []byte(`{"req":[1,"create_app_session",[],1700000000000]}`)
	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig))
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if crypto.PubkeyToAddress(*pub).Hex() != s.Address() {
		t.Fatal("recovered address does not match signer")
	}
}

func TestSignRejectsEmptyPayload(t *testing.T) {
	s, err := FromHexKey(testKeyHex)
	if err != nil {
		t.Fatalf("from hex key failed: %v", err)
	}
	if _, err := s.Sign(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestFromMnemonicDeterministic(t *testing.T) {
	mnemonic := "legal winner thank year wave sausage worth useful legal winner thank yellow"
	a, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("from mnemonic failed: %v", err)
	}
	b, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("from mnemonic failed: %v", err)
	}
	if a.Address() != b.Address() {
		t.Fatal("mnemonic derivation must be deterministic")
	}

	c, err := FromMnemonic(mnemonic, "other-passphrase")
	if err != nil {
		t.Fatalf("from mnemonic with passphrase failed: %v", err)
	}
	if c.Address() == a.Address() {
		t.Fatal("passphrase must change the derived wallet")
	}
}

func TestFromMnemonicRejectsInvalid(t *testing.T) {
	if _, err := FromMnemonic("not a mnemonic", ""); err == nil {
		t.Fatal("expected error for invalid mnemonic")
	}
}

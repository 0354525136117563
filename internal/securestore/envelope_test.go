package securestore

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte(`{"version":1,"channelId":"ch_123"}`)
	raw, err := Encrypt("passphrase-1", plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Contains(raw, []byte("ch_123")) {
		t.Fatal("ciphertext leaks plaintext")
	}

	out, err := Decrypt("passphrase-1", raw)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecryptRejectsWrongPassphrase(t *testing.T) {
	raw, err := Encrypt("right", []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("wrong", raw); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptRejectsForeignData(t *testing.T) {
	if _, err := Decrypt("p", []byte("not an envelope")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

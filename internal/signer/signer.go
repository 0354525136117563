package signer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSigning = "clearpay/wallet/signing/v1"

// Signer produces detached signatures over the keccak256 hash of a payload.
// The private key never leaves the implementation.
type Signer interface {
	Address() string
	Sign(payload []byte) ([]byte, error)
}

type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// FromHexKey builds a signer from a raw secp256k1 private key in hex.
func FromHexKey(hexKey string) (*LocalSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return newLocalSigner(key), nil
}

// FromMnemonic derives a signing key from a BIP-39 mnemonic. Derivation is
// deterministic: the same mnemonic and passphrase always yield the same wallet.
func FromMnemonic(mnemonic, passphrase string) (*LocalSigner, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("mnemonic is invalid")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	// Almost every candidate is a valid scalar; the counter guards the rare
	// out-of-range draw without breaking determinism.
	for counter := 0; counter < 16; counter++ {
		material, err := hkdfExpand(seed, fmt.Sprintf("%s/%d", hkdfInfoSigning, counter), 32)
		if err != nil {
			return nil, err
		}
		key, err := crypto.ToECDSA(material)
		if err == nil {
			return newLocalSigner(key), nil
		}
	}
	return nil, errors.New("key derivation exhausted candidates")
}

func newLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func (s *LocalSigner) Address() string { return s.address }

// Sign returns the 65-byte recoverable signature over keccak256(payload).
func (s *LocalSigner) Sign(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("payload is empty")
	}
	return crypto.Sign(crypto.Keccak256(payload), s.key)
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

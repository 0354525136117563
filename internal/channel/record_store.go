package channel

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"clearpay/go-backend/internal/securestore"
)

// RecordStore persists one encrypted ChannelRecord per (event, kind) pair.
// With no directory or secret configured it degrades to a no-op, matching
// ephemeral test setups.
type RecordStore struct {
	dir    string
	secret string
}

func NewRecordStore(dir, secret string) *RecordStore {
	return &RecordStore{dir: strings.TrimSpace(dir), secret: strings.TrimSpace(secret)}
}

func (s *RecordStore) enabled() bool {
	return s != nil && s.dir != "" && s.secret != ""
}

type persistedRecord struct {
	Version int    `json:"version"`
	Record  Record `json:"record"`
}

// path derives a stable opaque filename so the data dir does not leak which
// wallet or event a record belongs to.
func (s *RecordStore) path(owner, event, kind string) string {
	digest := crypto.Keccak256([]byte(strings.ToLower(owner) + "|" + event + "|" + kind))
	return filepath.Join(s.dir, base58.Encode(digest[:20])+".chan")
}

func (s *RecordStore) Load(owner, event, kind string) (Record, bool, error) {
	if !s.enabled() {
		return Record{}, false, nil
	}
	raw, err := os.ReadFile(s.path(owner, event, kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	plaintext, err := securestore.Decrypt(s.secret, raw)
	if err != nil {
		return Record{}, false, err
	}
	var state persistedRecord
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return Record{}, false, err
	}
	if state.Version != 1 {
		return Record{}, false, errors.New("channel record payload is invalid")
	}
	return state.Record, true, nil
}

func (s *RecordStore) Save(owner, event, kind string, rec Record) error {
	if !s.enabled() {
		return nil
	}
	payload, err := json.Marshal(persistedRecord{Version: 1, Record: rec})
	if err != nil {
		return err
	}
	encrypted, err := securestore.Encrypt(s.secret, payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(owner, event, kind), encrypted, 0o600)
}

func (s *RecordStore) Delete(owner, event, kind string) error {
	if !s.enabled() {
		return nil
	}
	err := os.Remove(s.path(owner, event, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

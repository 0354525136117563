package channel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordStoreRoundTrip(t *testing.T) {
	store := NewRecordStore(t.TempDir(), "secret-1")
	rec := Record{
		ChannelID:         "ch_123",
		OwnerAddress:      "0xOwner",
		State:             StateOpen,
		LatestSignedState: []byte(`{"v":1}`),
		OffchainBalance:   "42.5",
	}
	if err := store.Save("0xOwner", "devcon", "settlement", rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, ok, err := store.Load("0xOwner", "devcon", "settlement")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if got.ChannelID != rec.ChannelID || got.State != rec.State || got.OffchainBalance != rec.OffchainBalance {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRecordStoreKeysByEventAndKind(t *testing.T) {
	store := NewRecordStore(t.TempDir(), "secret-1")
	if err := store.Save("0xOwner", "devcon", "settlement", Record{ChannelID: "a"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, ok, _ := store.Load("0xOwner", "other-event", "settlement"); ok {
		t.Fatal("different event must not see the record")
	}
	if _, ok, _ := store.Load("0xOther", "devcon", "settlement"); ok {
		t.Fatal("different owner must not see the record")
	}
}

func TestRecordStoreFilenamesAreOpaque(t *testing.T) {
	dir := t.TempDir()
	store := NewRecordStore(dir, "secret-1")
	if err := store.Save("0xOwner", "devcon", "settlement", Record{ChannelID: "ch"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one record file, got %d", len(entries))
	}
	name := entries[0].Name()
	if strings.Contains(name, "devcon") || strings.Contains(strings.ToLower(name), "owner") {
		t.Fatalf("filename leaks record identity: %s", name)
	}
	if filepath.Ext(name) != ".chan" {
		t.Fatalf("unexpected extension on %s", name)
	}
}

func TestRecordStoreDelete(t *testing.T) {
	store := NewRecordStore(t.TempDir(), "secret-1")
	if err := store.Save("0xOwner", "devcon", "settlement", Record{ChannelID: "ch"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Delete("0xOwner", "devcon", "settlement"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Load("0xOwner", "devcon", "settlement"); ok {
		t.Fatal("record must be gone after delete")
	}
	// Deleting a missing record is fine.
	if err := store.Delete("0xOwner", "devcon", "settlement"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
}

func TestRecordStoreDisabledIsNoOp(t *testing.T) {
	store := NewRecordStore("", "")
	if err := store.Save("0xOwner", "devcon", "settlement", Record{ChannelID: "ch"}); err != nil {
		t.Fatalf("disabled save must be a no-op, got %v", err)
	}
	if _, ok, err := store.Load("0xOwner", "devcon", "settlement"); ok || err != nil {
		t.Fatalf("disabled load must report nothing, got ok=%v err=%v", ok, err)
	}
}

func TestRecordStoreWrongSecret(t *testing.T) {
	dir := t.TempDir()
	if err := NewRecordStore(dir, "right").Save("0xOwner", "devcon", "settlement", Record{ChannelID: "ch"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, _, err := NewRecordStore(dir, "wrong").Load("0xOwner", "devcon", "settlement"); err == nil {
		t.Fatal("expected decryption failure with wrong secret")
	}
}

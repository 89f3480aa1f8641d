package wallet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/vm/modules/battle"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := SaveKey(path, "hunter2", w.PrivKey()); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("keystore mode = %v", info.Mode().Perm())
	}

	priv, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if New(priv).Pubkey() != w.Pubkey() {
		t.Error("loaded key differs from saved key")
	}

	if _, err := LoadKey(path, "wrong"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("wrong password: got %v", err)
	}
}

func TestSaveKeyRejectsShortKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := SaveKey(path, "pw", crypto.PrivateKey{1, 2, 3}); err == nil {
		t.Error("expected error for a truncated key")
	}
}

func battleAccounts() []crypto.Pubkey {
	return []crypto.Pubkey{
		crypto.DeriveAddress("player", "1"),
		crypto.DeriveAddress("player", "2"),
		crypto.DeriveAddress("battlefield", "1"),
	}
}

func TestCommitTroops(t *testing.T) {
	w, _ := Generate()
	tx, err := w.CommitTroops("c", 2, battleAccounts(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if tx.ID != tx.Hash() || tx.Signer != w.Pubkey() || tx.ProgramID != battle.ProgramID {
		t.Errorf("unexpected tx header: %+v", tx)
	}
	in, err := battle.ParseInstruction(tx.Data)
	if err != nil {
		t.Fatal(err)
	}
	if in.Action != battle.ActionCommitPlayer2 || in.Amount != 30 {
		t.Errorf("instruction = %+v", in)
	}

	if _, err := w.CommitTroops("c", 3, battleAccounts(), 1); err == nil {
		t.Error("slot 3 should be rejected")
	}
	if _, err := w.CommitTroops("c", 1, battleAccounts()[:2], 1); err == nil {
		t.Error("two accounts should be rejected")
	}
}

func TestResolve(t *testing.T) {
	w, _ := Generate()
	tx, err := w.Resolve("c", battleAccounts())
	if err != nil {
		t.Fatal(err)
	}
	in, err := battle.ParseInstruction(tx.Data)
	if err != nil {
		t.Fatal(err)
	}
	if in.Action != battle.ActionResolve {
		t.Errorf("action = %v", in.Action)
	}
	if err := tx.Verify(); err != nil {
		t.Fatal(err)
	}
}

package core

import (
	"testing"

	"github.com/tolelom/tolbattle/crypto"
)

func TestTransactionSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	accounts := []crypto.Pubkey{
		crypto.DeriveAddress("player", "1"),
		crypto.DeriveAddress("player", "2"),
		crypto.DeriveAddress("battlefield", "1"),
	}
	tx := NewTransaction("test-chain", crypto.DeriveAddress("program"), pub, accounts, []byte{1, 30, 0, 0, 0, 0, 0, 0, 0})
	tx.Sign(priv)
	if tx.ID == "" {
		t.Error("tx ID should be set after signing")
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	tx.Data[1] = 99
	if err := tx.Verify(); err == nil {
		t.Error("tampered instruction should fail verification")
	}
}

func TestTransactionHashCoversAccountOrder(t *testing.T) {
	a := crypto.DeriveAddress("a")
	b := crypto.DeriveAddress("b")
	tx1 := &Transaction{ChainID: "c", Accounts: []crypto.Pubkey{a, b}, Timestamp: 1}
	tx2 := &Transaction{ChainID: "c", Accounts: []crypto.Pubkey{b, a}, Timestamp: 1}
	if tx1.Hash() == tx2.Hash() {
		t.Error("swapping accounts must change the hash")
	}
}

func TestTransactionMissingSigner(t *testing.T) {
	tx := &Transaction{ChainID: "c"}
	if err := tx.Verify(); err == nil {
		t.Error("unsigned transaction should fail verification")
	}
}

func TestNewTransactionCopiesInputs(t *testing.T) {
	data := []byte{3, 0, 0, 0, 0, 0, 0, 0, 0}
	accounts := []crypto.Pubkey{crypto.DeriveAddress("x")}
	tx := NewTransaction("c", crypto.Pubkey{}, crypto.Pubkey{}, accounts, data)
	data[0] = 9
	accounts[0] = crypto.Pubkey{}
	if tx.Data[0] != 3 || tx.Accounts[0].IsZero() {
		t.Error("NewTransaction must not alias caller slices")
	}
}

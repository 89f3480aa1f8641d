package wallet

import (
	"fmt"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/vm/modules/battle"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.Pubkey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Pubkey returns the wallet identity, the value a player record's owner holds.
func (w *Wallet) Pubkey() crypto.Pubkey {
	return w.pub
}

// NewTx creates a signed transaction invoking programID over accounts.
// chainID must match the target network.
func (w *Wallet) NewTx(chainID string, programID crypto.Pubkey, accounts []crypto.Pubkey, data []byte) *core.Transaction {
	tx := core.NewTransaction(chainID, programID, w.pub, accounts, data)
	tx.Sign(w.priv)
	return tx
}

// CommitTroops builds a signed battle instruction converting amount energy
// into troops for player slot 1 or 2. accounts are player1, player2,
// battlefield.
func (w *Wallet) CommitTroops(chainID string, slot int, accounts []crypto.Pubkey, amount uint64) (*core.Transaction, error) {
	if len(accounts) != 3 {
		return nil, fmt.Errorf("battle needs 3 accounts, got %d", len(accounts))
	}
	in, err := battle.CommitInstruction(slot, amount)
	if err != nil {
		return nil, err
	}
	return w.NewTx(chainID, battle.ProgramID, accounts, in.Encode()), nil
}

// Resolve builds a signed battle resolution over accounts.
func (w *Wallet) Resolve(chainID string, accounts []crypto.Pubkey) (*core.Transaction, error) {
	if len(accounts) != 3 {
		return nil, fmt.Errorf("battle needs 3 accounts, got %d", len(accounts))
	}
	return w.NewTx(chainID, battle.ProgramID, accounts, battle.ResolveInstruction().Encode()), nil
}

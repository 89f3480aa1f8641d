package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tolelom/tolbattle/crypto"
)

// Transaction invokes one program with one instruction.
// Accounts lists the storage slots the program may rewrite, in the order the
// program expects them. Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	ProgramID crypto.Pubkey   `json:"program_id"`
	Accounts  []crypto.Pubkey `json:"accounts"`
	Data      []byte          `json:"data"`
	Signer    crypto.Pubkey   `json:"signer"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	ProgramID crypto.Pubkey   `json:"program_id"`
	Accounts  []crypto.Pubkey `json:"accounts"`
	Data      []byte          `json:"data"`
	Signer    crypto.Pubkey   `json:"signer"`
	Timestamp int64           `json:"timestamp"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		ProgramID: tx.ProgramID,
		Accounts:  tx.Accounts,
		Data:      tx.Data,
		Signer:    tx.Signer,
		Timestamp: tx.Timestamp,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks that the signature was produced by Signer over the body.
func (tx *Transaction) Verify() error {
	if tx.Signer.IsZero() {
		return errors.New("missing signer")
	}
	return crypto.Verify(tx.Signer, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, programID, signer crypto.Pubkey, accounts []crypto.Pubkey, data []byte) *Transaction {
	return &Transaction{
		ChainID:   chainID,
		ProgramID: programID,
		Accounts:  append([]crypto.Pubkey(nil), accounts...),
		Data:      append([]byte(nil), data...),
		Signer:    signer,
		Timestamp: time.Now().UnixNano(),
	}
}

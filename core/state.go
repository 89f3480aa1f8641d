package core

import (
	"github.com/tolelom/tolbattle/crypto"
)

// Account is one storage slot on the ledger. Owner is the identity of the
// program allowed to rewrite Data; Data holds the record bytes and keeps its
// length for the lifetime of the account.
type Account struct {
	Address crypto.Pubkey `json:"address"`
	Owner   crypto.Pubkey `json:"owner"`
	Data    []byte        `json:"data"`
}

// Clone returns a deep copy so callers can mutate Data freely.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

// Receipt records a committed transaction. Its presence blocks replays.
type Receipt struct {
	TxID      string        `json:"tx_id"`
	ProgramID crypto.Pubkey `json:"program_id"`
	Signer    crypto.Pubkey `json:"signer"`
	Timestamp int64         `json:"timestamp"`
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(addr crypto.Pubkey) (*Account, error)
	SetAccount(acc *Account) error
	// Accounts returns every account ordered by address.
	Accounts() ([]*Account, error)

	// Receipts
	GetReceipt(txID string) (*Receipt, error)
	SetReceipt(r *Receipt) error

	// Meta holds node bookkeeping such as the genesis chain id.
	GetMeta(key string) ([]byte, error)
	SetMeta(key string, value []byte) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// DiscardSnapshot drops snapshot id and every later one, keeping the
	// current write buffer.
	DiscardSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}

package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixReceipt = registerPrefix("rcpt:")
	prefixMeta    = registerPrefix("meta:")
)

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	snapshots []map[string][]byte
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.dirty[key] = val
}

// scan merges persisted entries under prefix with the write buffer.
func (s *StateDB) scan(prefix string) (map[string][]byte, error) {
	merged := make(map[string][]byte)
	it := s.db.NewIterator([]byte(prefix))
	for it.Next() {
		merged[string(it.Key())] = bytes.Clone(it.Value())
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	for k, v := range s.dirty {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	return merged, nil
}

// ---- Account ----

// Accounts are stored as owner(32) | data.
func encodeAccount(acc *core.Account) []byte {
	out := make([]byte, crypto.PubkeySize+len(acc.Data))
	copy(out, acc.Owner[:])
	copy(out[crypto.PubkeySize:], acc.Data)
	return out
}

func decodeAccount(addr crypto.Pubkey, raw []byte) (*core.Account, error) {
	if len(raw) < crypto.PubkeySize {
		return nil, fmt.Errorf("account %s: stored value is %d bytes", addr, len(raw))
	}
	acc := &core.Account{Address: addr, Data: bytes.Clone(raw[crypto.PubkeySize:])}
	copy(acc.Owner[:], raw[:crypto.PubkeySize])
	if acc.Data == nil {
		acc.Data = []byte{}
	}
	return acc, nil
}

func (s *StateDB) GetAccount(addr crypto.Pubkey) (*core.Account, error) {
	raw, err := s.get(prefixAccount + addr.Hex())
	if err != nil {
		return nil, err
	}
	return decodeAccount(addr, raw)
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	if acc == nil {
		return errors.New("nil account")
	}
	s.set(prefixAccount+acc.Address.Hex(), encodeAccount(acc))
	return nil
}

func (s *StateDB) Accounts() ([]*core.Account, error) {
	merged, err := s.scan(prefixAccount)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*core.Account, 0, len(keys))
	for _, k := range keys {
		addr, err := crypto.PubkeyFromHex(strings.TrimPrefix(k, prefixAccount))
		if err != nil {
			return nil, fmt.Errorf("account key %q: %w", k, err)
		}
		acc, err := decodeAccount(addr, merged[k])
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

// ---- Receipt ----

func (s *StateDB) GetReceipt(txID string) (*core.Receipt, error) {
	data, err := s.get(prefixReceipt + txID)
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetReceipt(r *core.Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.set(prefixReceipt+r.TxID, data)
	return nil
}

// ---- Meta ----

func (s *StateDB) GetMeta(key string) ([]byte, error) {
	return s.get(prefixMeta + key)
}

func (s *StateDB) SetMeta(key string, value []byte) error {
	s.set(prefixMeta+key, bytes.Clone(value))
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.snapshots = append(s.snapshots, copyBuffer(s.dirty))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it along with every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.dirty = copyBuffer(s.snapshots[id])
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot forgets a snapshot (and every later one) once the writes
// it guarded are accepted.
func (s *StateDB) DiscardSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.snapshots = s.snapshots[:id]
	return nil
}

func copyBuffer(src map[string][]byte) map[string][]byte {
	dst := make(map[string][]byte, len(src))
	for k, v := range src {
		dst[k] = bytes.Clone(v)
	}
	return dst
}

// ComputeRoot returns the deterministic hash of the complete state.
// It merges all persisted entries under the known prefixes with the current
// write buffer, then hashes the sorted key-value pairs using length-prefix
// encoding. It does NOT flush or modify state.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		entries, err := s.scan(prefix)
		if err != nil {
			// an unreadable store has no meaningful root
			return ""
		}
		for k, v := range entries {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it along with all snapshots.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}

// Package indexer maintains secondary indexes over committed transactions so
// clients can query battle history without replaying the ledger.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/events"
	"github.com/tolelom/tolbattle/storage"
)

// Index keys live outside the state prefixes, so they never affect the root.
const (
	prefixBattlefield = "idx:battlefield:"
	prefixPlayer      = "idx:player:"
)

// BattleRecord is one resolution of a battlefield.
type BattleRecord struct {
	TxID          string `json:"tx_id"`
	Winner        string `json:"winner"`
	Player1Troops uint64 `json:"player1_troops"`
	Player2Troops uint64 `json:"player2_troops"`
}

// CommitRecord is one commit instruction against a player, including the
// ones skipped for lack of energy.
type CommitRecord struct {
	TxID      string `json:"tx_id"`
	Slot      int    `json:"slot"`
	Amount    uint64 `json:"amount"`
	Committed bool   `json:"committed"`
	Energy    uint64 `json:"energy"`
	Troops    uint64 `json:"troops"`
}

// Indexer subscribes to battle events and updates secondary lookup tables.
type Indexer struct {
	mu      sync.Mutex
	db      storage.DB
	cancels []func()
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	idx.cancels = []func(){
		emitter.Subscribe(events.EventBattleResolved, idx.onBattleResolved),
		emitter.Subscribe(events.EventTroopsCommitted, idx.onCommit(true)),
		emitter.Subscribe(events.EventCommitSkipped, idx.onCommit(false)),
	}
	return idx
}

// Close unsubscribes from the emitter.
func (idx *Indexer) Close() {
	for _, cancel := range idx.cancels {
		cancel()
	}
	idx.cancels = nil
}

// BattleHistory returns every resolution of battlefield, oldest first.
func (idx *Indexer) BattleHistory(battlefield crypto.Pubkey) ([]BattleRecord, error) {
	var out []BattleRecord
	err := idx.getList(prefixBattlefield+battlefield.Hex(), &out)
	return out, err
}

// PlayerCommits returns every commit instruction aimed at player, oldest first.
func (idx *Indexer) PlayerCommits(player crypto.Pubkey) ([]CommitRecord, error) {
	var out []CommitRecord
	err := idx.getList(prefixPlayer+player.Hex(), &out)
	return out, err
}

// ---- event handlers ----

func (idx *Indexer) onBattleResolved(ev events.Event) {
	bf, _ := ev.Data["battlefield"].(string)
	winner, _ := ev.Data["winner"].(string)
	p1, _ := ev.Data["player1_troops"].(uint64)
	p2, _ := ev.Data["player2_troops"].(uint64)
	if bf == "" || ev.TxID == "" {
		return
	}
	rec := BattleRecord{TxID: ev.TxID, Winner: winner, Player1Troops: p1, Player2Troops: p2}
	if err := appendToList(idx, prefixBattlefield+bf, rec); err != nil {
		log.Printf("[indexer] battlefield %s: %v", bf, err)
	}
}

func (idx *Indexer) onCommit(committed bool) events.Handler {
	return func(ev events.Event) {
		player, _ := ev.Data["player"].(string)
		if player == "" || ev.TxID == "" {
			return
		}
		rec := CommitRecord{TxID: ev.TxID, Committed: committed}
		rec.Slot, _ = ev.Data["slot"].(int)
		rec.Amount, _ = ev.Data["amount"].(uint64)
		rec.Energy, _ = ev.Data["energy"].(uint64)
		rec.Troops, _ = ev.Data["troops"].(uint64)
		if err := appendToList(idx, prefixPlayer+player, rec); err != nil {
			log.Printf("[indexer] player %s: %v", player, err)
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string, out any) error {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil // empty list
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("indexer unmarshal: %w", err)
	}
	return nil
}

func appendToList[T any](idx *Indexer, key string, value T) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var list []T
	if err := idx.getList(key, &list); err != nil {
		return err
	}
	list = append(list, value)
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

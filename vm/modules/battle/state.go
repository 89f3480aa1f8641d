package battle

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/tolbattle/crypto"
)

// Record widths. Buffers may be larger; trailing bytes are zeroed on encode.
const (
	PlayerSize      = 8 + crypto.PubkeySize + 8 + 8
	BattleFieldSize = 8 + crypto.PubkeySize + crypto.PubkeySize + 8 + 8
)

// Player is a combatant. ID and Owner never change after genesis.
type Player struct {
	ID     uint64        `json:"id"`
	Owner  crypto.Pubkey `json:"owner"`
	Energy uint64        `json:"energy"`
	Troops uint64        `json:"troops"`
}

// BattleField records the strength of the last winner of a resolution.
type BattleField struct {
	ID            uint64        `json:"id"`
	Player1       crypto.Pubkey `json:"player1"`
	Player2       crypto.Pubkey `json:"player2"`
	Player1Troops uint64        `json:"player1_troops"`
	Player2Troops uint64        `json:"player2_troops"`
}

// DecodePlayer reads a Player from the leading PlayerSize bytes of buf.
func DecodePlayer(buf []byte) (Player, error) {
	if len(buf) < PlayerSize {
		return Player{}, fmt.Errorf("player needs %d bytes, got %d: %w", PlayerSize, len(buf), ErrMalformedRecord)
	}
	r := reader{b: buf}
	return Player{
		ID:     r.u64(),
		Owner:  r.key(),
		Energy: r.u64(),
		Troops: r.u64(),
	}, nil
}

// Encode writes p into buf and zeroes everything after PlayerSize.
// buf is left untouched when it is too short.
func (p Player) Encode(buf []byte) error {
	if len(buf) < PlayerSize {
		return fmt.Errorf("player needs %d bytes, got %d: %w", PlayerSize, len(buf), ErrMalformedRecord)
	}
	w := writer{b: buf}
	w.u64(p.ID)
	w.key(p.Owner)
	w.u64(p.Energy)
	w.u64(p.Troops)
	clear(buf[PlayerSize:])
	return nil
}

// DecodeBattleField reads a BattleField from the leading BattleFieldSize bytes of buf.
func DecodeBattleField(buf []byte) (BattleField, error) {
	if len(buf) < BattleFieldSize {
		return BattleField{}, fmt.Errorf("battlefield needs %d bytes, got %d: %w", BattleFieldSize, len(buf), ErrMalformedRecord)
	}
	r := reader{b: buf}
	return BattleField{
		ID:            r.u64(),
		Player1:       r.key(),
		Player2:       r.key(),
		Player1Troops: r.u64(),
		Player2Troops: r.u64(),
	}, nil
}

// Encode writes bf into buf and zeroes everything after BattleFieldSize.
// buf is left untouched when it is too short.
func (bf BattleField) Encode(buf []byte) error {
	if len(buf) < BattleFieldSize {
		return fmt.Errorf("battlefield needs %d bytes, got %d: %w", BattleFieldSize, len(buf), ErrMalformedRecord)
	}
	w := writer{b: buf}
	w.u64(bf.ID)
	w.key(bf.Player1)
	w.key(bf.Player2)
	w.u64(bf.Player1Troops)
	w.u64(bf.Player2Troops)
	clear(buf[BattleFieldSize:])
	return nil
}

// reader and writer walk a buffer whose length was checked by the caller.

type reader struct {
	b   []byte
	off int
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.b[r.off : r.off+8])
	r.off += 8
	return v
}

func (r *reader) key() crypto.Pubkey {
	var k crypto.Pubkey
	copy(k[:], r.b[r.off:r.off+crypto.PubkeySize])
	r.off += crypto.PubkeySize
	return k
}

type writer struct {
	b   []byte
	off int
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.b[w.off:w.off+8], v)
	w.off += 8
}

func (w *writer) key(k crypto.Pubkey) {
	copy(w.b[w.off:w.off+crypto.PubkeySize], k[:])
	w.off += crypto.PubkeySize
}

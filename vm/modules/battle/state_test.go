package battle

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/tolelom/tolbattle/crypto"
)

func TestPlayerRoundTrip(t *testing.T) {
	cases := []Player{
		{},
		{ID: 1, Owner: crypto.DeriveAddress("alice"), Energy: 100, Troops: 0},
		{ID: math.MaxUint64, Owner: crypto.DeriveAddress("bob"), Energy: math.MaxUint64, Troops: math.MaxUint64},
	}
	for _, want := range cases {
		buf := make([]byte, PlayerSize)
		if err := want.Encode(buf); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := DecodePlayer(buf)
		if err != nil {
			t.Fatalf("DecodePlayer: %v", err)
		}
		if got != want {
			t.Errorf("roundtrip: got %+v want %+v", got, want)
		}
	}
}

func TestBattleFieldRoundTrip(t *testing.T) {
	want := BattleField{
		ID:            9,
		Player1:       crypto.DeriveAddress("alice"),
		Player2:       crypto.DeriveAddress("bob"),
		Player1Troops: 30,
		Player2Troops: math.MaxUint64,
	}
	buf := make([]byte, BattleFieldSize)
	if err := want.Encode(buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeBattleField(buf)
	if err != nil {
		t.Fatalf("DecodeBattleField: %v", err)
	}
	if got != want {
		t.Errorf("roundtrip: got %+v want %+v", got, want)
	}
}

func TestPlayerLayout(t *testing.T) {
	owner := crypto.DeriveAddress("alice")
	p := Player{ID: 0x0102030405060708, Owner: owner, Energy: 100, Troops: 7}
	buf := make([]byte, PlayerSize)
	if err := p.Encode(buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[0:8], []byte{8, 7, 6, 5, 4, 3, 2, 1}) {
		t.Errorf("id not little-endian at offset 0: %x", buf[0:8])
	}
	if !bytes.Equal(buf[8:40], owner[:]) {
		t.Errorf("owner not at offset 8")
	}
	if buf[40] != 100 || buf[48] != 7 {
		t.Errorf("energy/troops at wrong offsets: %x", buf[40:])
	}
}

func TestBattleFieldLayout(t *testing.T) {
	bf := BattleField{ID: 1, Player1: crypto.DeriveAddress("a"), Player2: crypto.DeriveAddress("b"), Player1Troops: 5, Player2Troops: 6}
	buf := make([]byte, BattleFieldSize)
	if err := bf.Encode(buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[8:40], bf.Player1[:]) || !bytes.Equal(buf[40:72], bf.Player2[:]) {
		t.Error("player identities at wrong offsets")
	}
	if buf[72] != 5 || buf[80] != 6 {
		t.Errorf("troop fields at wrong offsets: %x", buf[72:])
	}
}

func TestEncodeZeroFillsTrailingBytes(t *testing.T) {
	buf := bytes.Repeat([]byte{0xff}, BattleFieldSize+16)
	bf := BattleField{ID: 2, Player1Troops: 11, Player2Troops: 12}
	if err := bf.Encode(buf); err != nil {
		t.Fatal(err)
	}
	if len(buf) != BattleFieldSize+16 {
		t.Fatalf("buffer length changed to %d", len(buf))
	}
	for i, b := range buf[BattleFieldSize:] {
		if b != 0 {
			t.Fatalf("trailing byte %d = %#x, want 0", BattleFieldSize+i, b)
		}
	}
	// the last field must survive the zero fill
	got, _ := DecodeBattleField(buf)
	if got.Player2Troops != 12 {
		t.Errorf("player2_troops = %d, want 12", got.Player2Troops)
	}

	pbuf := bytes.Repeat([]byte{0xff}, PlayerSize+3)
	if err := (Player{ID: 1}).Encode(pbuf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pbuf[PlayerSize:], []byte{0, 0, 0}) {
		t.Errorf("player trailing bytes not zeroed: %x", pbuf[PlayerSize:])
	}
}

func TestShortBuffers(t *testing.T) {
	if _, err := DecodePlayer(make([]byte, PlayerSize-1)); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("DecodePlayer short: got %v", err)
	}
	if _, err := DecodeBattleField(make([]byte, BattleFieldSize-1)); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("DecodeBattleField short: got %v", err)
	}

	pbuf := bytes.Repeat([]byte{0xaa}, PlayerSize-1)
	if err := (Player{ID: 1, Energy: 5}).Encode(pbuf); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Player.Encode short: got %v", err)
	}
	if !bytes.Equal(pbuf, bytes.Repeat([]byte{0xaa}, PlayerSize-1)) {
		t.Error("failed Player.Encode touched the buffer")
	}

	bbuf := bytes.Repeat([]byte{0xaa}, BattleFieldSize-1)
	if err := (BattleField{ID: 1}).Encode(bbuf); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("BattleField.Encode short: got %v", err)
	}
	if !bytes.Equal(bbuf, bytes.Repeat([]byte{0xaa}, BattleFieldSize-1)) {
		t.Error("failed BattleField.Encode touched the buffer")
	}
}

package config

import (
	"strings"
	"testing"

	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/internal/testutil"
	"github.com/tolelom/tolbattle/vm/modules/battle"
)

func ownerHex(n byte) string {
	var k crypto.Pubkey
	for i := range k {
		k[i] = n
	}
	return k.Hex()
}

func genesisConfig() *Config {
	cfg := DefaultConfig()
	cfg.Genesis.ChainID = "battle-test"
	cfg.Genesis.Players = []PlayerAlloc{
		{ID: 1, Owner: ownerHex(1), Energy: 100, Troops: 0},
		{ID: 2, Owner: ownerHex(2), Energy: 40, Troops: 3, Capacity: 64},
	}
	cfg.Genesis.Battlefields = []BattlefieldAlloc{
		{ID: 9, Player1: 1, Player2: 2},
	}
	return cfg
}

func TestCreateGenesis(t *testing.T) {
	st := testutil.NewStateDB()
	root, err := CreateGenesis(genesisConfig(), st)
	if err != nil {
		t.Fatalf("CreateGenesis: %v", err)
	}
	if root != st.ComputeRoot() {
		t.Error("returned root differs from committed state root")
	}

	acc, err := st.GetAccount(PlayerAddress(2))
	if err != nil {
		t.Fatal(err)
	}
	if acc.Owner != battle.ProgramID {
		t.Error("player not owned by the battle program")
	}
	if len(acc.Data) != 64 {
		t.Errorf("capacity not honoured: %d bytes", len(acc.Data))
	}
	p, err := battle.DecodePlayer(acc.Data)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 2 || p.Energy != 40 || p.Troops != 3 || p.Owner.Hex() != ownerHex(2) {
		t.Errorf("player = %+v", p)
	}

	acc, err = st.GetAccount(BattlefieldAddress(9))
	if err != nil {
		t.Fatal(err)
	}
	if len(acc.Data) != battle.BattleFieldSize {
		t.Errorf("default capacity = %d", len(acc.Data))
	}
	bf, err := battle.DecodeBattleField(acc.Data)
	if err != nil {
		t.Fatal(err)
	}
	if bf.Player1.Hex() != ownerHex(1) || bf.Player2.Hex() != ownerHex(2) {
		t.Errorf("battlefield identities = %s / %s", bf.Player1, bf.Player2)
	}

	chain, _ := st.GetMeta(MetaChainID)
	if string(chain) != "battle-test" {
		t.Errorf("chain id = %q", chain)
	}
}

func TestCreateGenesisIdempotent(t *testing.T) {
	st := testutil.NewStateDB()
	first, err := CreateGenesis(genesisConfig(), st)
	if err != nil {
		t.Fatal(err)
	}
	second, err := CreateGenesis(genesisConfig(), st)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != second {
		t.Error("re-running genesis changed the state root")
	}

	other := genesisConfig()
	other.Genesis.ChainID = "elsewhere"
	if _, err := CreateGenesis(other, st); err == nil {
		t.Error("genesis on a state from another chain should fail")
	}
}

func TestCreateGenesisRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown player", func(c *Config) { c.Genesis.Battlefields[0].Player2 = 5 }, "unknown player"},
		{"duplicate player", func(c *Config) { c.Genesis.Players[1].ID = 1 }, "duplicate player"},
		{"small capacity", func(c *Config) { c.Genesis.Players[0].Capacity = 10 }, "capacity"},
		{"bad owner", func(c *Config) { c.Genesis.Players[0].Owner = "zz" }, "owner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := genesisConfig()
			tc.mutate(cfg)
			st := testutil.NewStateDB()
			_, err := CreateGenesis(cfg, st)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want error containing %q", err, tc.want)
			}
		})
	}
}

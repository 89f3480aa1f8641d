package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/vm/modules/battle"
)

// MetaChainID is the state meta key holding the genesis chain id.
const MetaChainID = "chain_id"

// PlayerAddress returns the account address of the genesis player with id.
func PlayerAddress(id uint64) crypto.Pubkey {
	return crypto.DeriveAddress("player", strconv.FormatUint(id, 10))
}

// BattlefieldAddress returns the account address of the genesis battlefield with id.
func BattlefieldAddress(id uint64) crypto.Pubkey {
	return crypto.DeriveAddress("battlefield", strconv.FormatUint(id, 10))
}

// CreateGenesis writes the configured players and battlefields into a fresh
// state, records the chain id and commits. It returns the resulting state
// root. On a state that already carries the same chain id it does nothing.
func CreateGenesis(cfg *Config, state core.State) (string, error) {
	chainID := cfg.Genesis.ChainID
	if chainID == "" {
		return "", errors.New("genesis: empty chain id")
	}
	existing, err := state.GetMeta(MetaChainID)
	switch {
	case err == nil:
		if string(existing) != chainID {
			return "", fmt.Errorf("genesis: state belongs to chain %q, config says %q", existing, chainID)
		}
		return state.ComputeRoot(), nil
	case !errors.Is(err, core.ErrNotFound):
		return "", err
	}

	owners := make(map[uint64]crypto.Pubkey, len(cfg.Genesis.Players))
	for _, p := range cfg.Genesis.Players {
		if _, dup := owners[p.ID]; dup {
			return "", fmt.Errorf("genesis: duplicate player id %d", p.ID)
		}
		owner, err := crypto.PubkeyFromHex(p.Owner)
		if err != nil {
			return "", fmt.Errorf("genesis: player %d owner: %w", p.ID, err)
		}
		buf, err := recordBuffer(p.Capacity, battle.PlayerSize)
		if err != nil {
			return "", fmt.Errorf("genesis: player %d: %w", p.ID, err)
		}
		rec := battle.Player{ID: p.ID, Owner: owner, Energy: p.Energy, Troops: p.Troops}
		if err := rec.Encode(buf); err != nil {
			return "", err
		}
		if err := state.SetAccount(&core.Account{
			Address: PlayerAddress(p.ID),
			Owner:   battle.ProgramID,
			Data:    buf,
		}); err != nil {
			return "", err
		}
		owners[p.ID] = owner
	}

	seen := make(map[uint64]bool, len(cfg.Genesis.Battlefields))
	for _, b := range cfg.Genesis.Battlefields {
		if seen[b.ID] {
			return "", fmt.Errorf("genesis: duplicate battlefield id %d", b.ID)
		}
		seen[b.ID] = true
		p1, ok := owners[b.Player1]
		if !ok {
			return "", fmt.Errorf("genesis: battlefield %d references unknown player %d", b.ID, b.Player1)
		}
		p2, ok := owners[b.Player2]
		if !ok {
			return "", fmt.Errorf("genesis: battlefield %d references unknown player %d", b.ID, b.Player2)
		}
		buf, err := recordBuffer(b.Capacity, battle.BattleFieldSize)
		if err != nil {
			return "", fmt.Errorf("genesis: battlefield %d: %w", b.ID, err)
		}
		rec := battle.BattleField{
			ID:            b.ID,
			Player1:       p1,
			Player2:       p2,
			Player1Troops: b.Player1Troops,
			Player2Troops: b.Player2Troops,
		}
		if err := rec.Encode(buf); err != nil {
			return "", err
		}
		if err := state.SetAccount(&core.Account{
			Address: BattlefieldAddress(b.ID),
			Owner:   battle.ProgramID,
			Data:    buf,
		}); err != nil {
			return "", err
		}
	}

	if err := state.SetMeta(MetaChainID, []byte(chainID)); err != nil {
		return "", err
	}
	root := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return "", err
	}
	return root, nil
}

func recordBuffer(capacity, width int) ([]byte, error) {
	if capacity == 0 {
		capacity = width
	}
	if capacity < width {
		return nil, fmt.Errorf("capacity %d below record width %d", capacity, width)
	}
	return make([]byte, capacity), nil
}

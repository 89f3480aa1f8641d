// Package battle is the battlefield program: two players convert energy into
// troops and a resolution records the stronger side on a shared battlefield.
//
// Records are fixed-width little-endian structs stored in account data:
//
//	Player      id(8) | owner(32) | energy(8) | troops(8)                          56 bytes
//	BattleField id(8) | player1(32) | player2(32) | player1_troops(8) | player2_troops(8)  88 bytes
//
// Instructions are 9 bytes: action tag (1 = player 1 commits, 2 = player 2
// commits, 3 = resolve) followed by a little-endian uint64 amount.
package battle

import (
	"fmt"
	"log"

	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/events"
	"github.com/tolelom/tolbattle/vm"
)

// ProgramID is the identity the battle program is registered under. Every
// battlefield account must be owned by it.
var ProgramID = crypto.DeriveAddress("tolbattle", "battle")

func init() {
	vm.Register(ProgramID, handleBattle)
}

// handleBattle expects accounts in the order player1, player2, battlefield.
func handleBattle(ctx *vm.Context, data []byte) error {
	if len(ctx.Accounts) != 3 {
		return fmt.Errorf("battle expects 3 accounts, got %d: %w", len(ctx.Accounts), ErrInvalidInstruction)
	}
	proc := Processor{Policy: Policy{StrictAccounts: ctx.StrictAccounts}}
	accts := Accounts{
		Player1:     ctx.Accounts[0],
		Player2:     ctx.Accounts[1],
		Battlefield: ctx.Accounts[2],
	}
	var signer crypto.Pubkey
	if ctx.Tx != nil {
		signer = ctx.Tx.Signer
	}
	out, err := proc.Process(ctx.ProgramID, accts, signer, data)
	if err != nil {
		return err
	}
	report(ctx, accts, out)
	return nil
}

func report(ctx *vm.Context, accts Accounts, out *Outcome) {
	in := out.Instruction
	switch in.Action {
	case ActionCommitPlayer1, ActionCommitPlayer2:
		slot, addr, pl := 1, accts.Player1.Address, out.Player1
		if in.Action == ActionCommitPlayer2 {
			slot, addr, pl = 2, accts.Player2.Address, out.Player2
		}
		data := map[string]any{
			"player": addr.Hex(),
			"slot":   slot,
			"amount": in.Amount,
			"energy": pl.Energy,
			"troops": pl.Troops,
		}
		if !out.Committed {
			ctx.Emit(events.Event{Type: events.EventCommitSkipped, Data: data})
			return
		}
		log.Printf("[battle] player %d spent %d energy to send %d troops", slot, in.Amount, in.Amount)
		ctx.Emit(events.Event{Type: events.EventTroopsCommitted, Data: data})

	case ActionResolve:
		switch out.Winner {
		case Player1Wins:
			log.Printf("[battle] player 1 won the battle")
		case Player2Wins:
			log.Printf("[battle] player 2 won the battle")
		default:
			log.Printf("[battle] the battle ended in a draw")
		}
		ctx.Emit(events.Event{
			Type: events.EventBattleResolved,
			Data: map[string]any{
				"battlefield":    accts.Battlefield.Address.Hex(),
				"winner":         out.Winner.String(),
				"player1_troops": out.Battlefield.Player1Troops,
				"player2_troops": out.Battlefield.Player2Troops,
			},
		})
	}
}

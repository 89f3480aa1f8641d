package battle

import (
	"fmt"
	"math/bits"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
)

// Accounts are the three storage slots one instruction operates on.
// Their Data buffers are rewritten in place on success.
type Accounts struct {
	Player1     *core.Account
	Player2     *core.Account
	Battlefield *core.Account
}

// Policy enables optional account checks on top of the default transition.
type Policy struct {
	// StrictAccounts requires the player records to be the battlefield's
	// recorded combatants and a commit to be signed by the committing player.
	StrictAccounts bool
}

// Winner is the result of a resolution.
type Winner uint8

const (
	NoBattle Winner = iota
	Player1Wins
	Player2Wins
	Draw
)

func (w Winner) String() string {
	switch w {
	case Player1Wins:
		return "player1"
	case Player2Wins:
		return "player2"
	case Draw:
		return "draw"
	default:
		return "none"
	}
}

// Outcome describes what one successful Process call did.
type Outcome struct {
	Instruction Instruction
	// Committed is false for a commit skipped for lack of energy.
	Committed   bool
	Winner      Winner
	Player1     Player
	Player2     Player
	Battlefield BattleField
}

// Processor runs the battle transition under a Policy.
type Processor struct {
	Policy Policy
}

// Process runs the transition with the default (unchecked) policy.
func Process(programID crypto.Pubkey, accts Accounts, data []byte) (*Outcome, error) {
	return Processor{}.Process(programID, accts, crypto.Pubkey{}, data)
}

// Process validates everything up front and only then rewrites the three
// buffers, so an error always leaves them byte-for-byte unchanged.
// signer is only consulted under Policy.StrictAccounts.
func (p Processor) Process(programID crypto.Pubkey, accts Accounts, signer crypto.Pubkey, data []byte) (*Outcome, error) {
	if accts.Player1 == nil || accts.Player2 == nil || accts.Battlefield == nil {
		return nil, fmt.Errorf("battle needs player1, player2 and battlefield accounts: %w", ErrInvalidInstruction)
	}
	if accts.Battlefield.Owner != programID {
		return nil, fmt.Errorf("battlefield %s owned by %s: %w", accts.Battlefield.Address, accts.Battlefield.Owner, ErrWrongOwner)
	}

	in, err := ParseInstruction(data)
	if err != nil {
		return nil, err
	}

	p1, err := DecodePlayer(accts.Player1.Data)
	if err != nil {
		return nil, fmt.Errorf("player1 %s: %w", accts.Player1.Address, err)
	}
	p2, err := DecodePlayer(accts.Player2.Data)
	if err != nil {
		return nil, fmt.Errorf("player2 %s: %w", accts.Player2.Address, err)
	}
	bf, err := DecodeBattleField(accts.Battlefield.Data)
	if err != nil {
		return nil, fmt.Errorf("battlefield %s: %w", accts.Battlefield.Address, err)
	}

	if p.Policy.StrictAccounts {
		if err := checkParticipants(in, p1, p2, bf, signer); err != nil {
			return nil, err
		}
	}

	out := &Outcome{Instruction: in}
	switch in.Action {
	case ActionCommitPlayer1:
		out.Committed, err = commit(&p1, in.Amount)
	case ActionCommitPlayer2:
		out.Committed, err = commit(&p2, in.Amount)
	case ActionResolve:
		out.Winner = resolve(p1, p2, &bf)
	default:
		// ParseInstruction only admits the three actions above.
		return nil, fmt.Errorf("unknown action tag %d: %w", uint8(in.Action), ErrInvalidInstruction)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Action, err)
	}

	// Widths were checked by the decoders, so none of these can fail midway.
	if err := p1.Encode(accts.Player1.Data); err != nil {
		return nil, err
	}
	if err := p2.Encode(accts.Player2.Data); err != nil {
		return nil, err
	}
	if err := bf.Encode(accts.Battlefield.Data); err != nil {
		return nil, err
	}

	out.Player1, out.Player2, out.Battlefield = p1, p2, bf
	return out, nil
}

// commit converts energy into troops one to one. Not having enough energy is
// not an error: the commit is skipped and reported as such.
func commit(pl *Player, amount uint64) (bool, error) {
	if pl.Energy < amount {
		return false, nil
	}
	troops, carry := bits.Add64(pl.Troops, amount, 0)
	if carry != 0 {
		return false, ErrArithmeticOverflow
	}
	pl.Energy -= amount
	pl.Troops = troops
	return true, nil
}

// resolve writes the stronger side's troops into the battlefield and zeroes
// the loser. A draw leaves the battlefield as it was.
func resolve(p1, p2 Player, bf *BattleField) Winner {
	switch {
	case p1.Troops > p2.Troops:
		bf.Player1Troops = p1.Troops
		bf.Player2Troops = 0
		return Player1Wins
	case p2.Troops > p1.Troops:
		bf.Player1Troops = 0
		bf.Player2Troops = p2.Troops
		return Player2Wins
	default:
		return Draw
	}
}

func checkParticipants(in Instruction, p1, p2 Player, bf BattleField, signer crypto.Pubkey) error {
	if p1.Owner != bf.Player1 {
		return fmt.Errorf("player1 owner %s, battlefield expects %s: %w", p1.Owner, bf.Player1, ErrParticipantMismatch)
	}
	if p2.Owner != bf.Player2 {
		return fmt.Errorf("player2 owner %s, battlefield expects %s: %w", p2.Owner, bf.Player2, ErrParticipantMismatch)
	}
	switch in.Action {
	case ActionCommitPlayer1:
		if signer != p1.Owner {
			return fmt.Errorf("commit for player1 signed by %s: %w", signer, ErrMissingSigner)
		}
	case ActionCommitPlayer2:
		if signer != p2.Owner {
			return fmt.Errorf("commit for player2 signed by %s: %w", signer, ErrMissingSigner)
		}
	}
	return nil
}

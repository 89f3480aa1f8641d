package battle

import (
	"encoding/binary"
	"fmt"
)

// InstructionSize is the exact length of an encoded instruction:
// one action byte followed by a little-endian uint64 amount.
const InstructionSize = 9

// Action selects the transition applied by Process.
type Action uint8

const (
	ActionCommitPlayer1 Action = 1
	ActionCommitPlayer2 Action = 2
	ActionResolve       Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionCommitPlayer1:
		return "commit_player1"
	case ActionCommitPlayer2:
		return "commit_player2"
	case ActionResolve:
		return "resolve"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Instruction is the decoded form of the 9-byte instruction data.
// Amount is ignored by ActionResolve.
type Instruction struct {
	Action Action
	Amount uint64
}

// ParseInstruction decodes data and rejects unknown action tags.
func ParseInstruction(data []byte) (Instruction, error) {
	if len(data) != InstructionSize {
		return Instruction{}, fmt.Errorf("instruction must be %d bytes, got %d: %w", InstructionSize, len(data), ErrInvalidInstruction)
	}
	in := Instruction{
		Action: Action(data[0]),
		Amount: binary.LittleEndian.Uint64(data[1:InstructionSize]),
	}
	switch in.Action {
	case ActionCommitPlayer1, ActionCommitPlayer2, ActionResolve:
		return in, nil
	default:
		return Instruction{}, fmt.Errorf("unknown action tag %d: %w", data[0], ErrInvalidInstruction)
	}
}

// Encode returns the wire form of in.
func (in Instruction) Encode() []byte {
	out := make([]byte, InstructionSize)
	out[0] = byte(in.Action)
	binary.LittleEndian.PutUint64(out[1:], in.Amount)
	return out
}

// CommitInstruction builds a commit for player slot 1 or 2.
func CommitInstruction(slot int, amount uint64) (Instruction, error) {
	switch slot {
	case 1:
		return Instruction{Action: ActionCommitPlayer1, Amount: amount}, nil
	case 2:
		return Instruction{Action: ActionCommitPlayer2, Amount: amount}, nil
	default:
		return Instruction{}, fmt.Errorf("player slot must be 1 or 2, got %d", slot)
	}
}

// ResolveInstruction builds a battle resolution.
func ResolveInstruction() Instruction {
	return Instruction{Action: ActionResolve}
}

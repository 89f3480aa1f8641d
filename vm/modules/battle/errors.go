package battle

import "errors"

// Errors returned by the battle program. Callers compare with errors.Is;
// returned values are usually wrapped with the offending account or tag.
var (
	// ErrInvalidInstruction: the instruction is not 9 bytes, the action tag is
	// unknown, or the account list has the wrong shape.
	ErrInvalidInstruction = errors.New("invalid instruction")
	// ErrWrongOwner: the battlefield account is not controlled by the program.
	ErrWrongOwner = errors.New("battlefield not owned by program")
	// ErrMalformedRecord: a buffer is shorter than its record width.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrArithmeticOverflow: committing would overflow the troop counter.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrParticipantMismatch: a player record is not one of the battlefield's
	// combatants. Only checked under Policy.StrictAccounts.
	ErrParticipantMismatch = errors.New("player is not a battlefield participant")
	// ErrMissingSigner: the committing player did not sign. Only checked under
	// Policy.StrictAccounts.
	ErrMissingSigner = errors.New("missing required signature")
)

package crypto

import (
	"encoding/hex"
	"fmt"
)

// PubkeySize is the width of every on-ledger identity and address.
const PubkeySize = 32

// Pubkey is a 32-byte public identity. It doubles as an account address and
// as a program identity. Text form is lowercase hex.
type Pubkey [PubkeySize]byte

// Hex returns the 64-char hex encoding.
func (p Pubkey) Hex() string {
	return hex.EncodeToString(p[:])
}

func (p Pubkey) String() string { return p.Hex() }

// IsZero reports whether p is the all-zero key.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.Hex()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	k, err := PubkeyFromHex(string(text))
	if err != nil {
		return err
	}
	*p = k
	return nil
}

// PubkeyFromHex decodes a hex-encoded 32-byte key.
func PubkeyFromHex(s string) (Pubkey, error) {
	var p Pubkey
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != PubkeySize {
		return p, fmt.Errorf("pubkey must be %d bytes, got %d", PubkeySize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

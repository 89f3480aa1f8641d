package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// DeriveAddress returns a deterministic 32-byte address for a list of seeds.
// Each seed is length-prefixed so ("ab","c") and ("a","bc") never collide.
func DeriveAddress(seeds ...string) Pubkey {
	h := sha256.New()
	var lenBuf [4]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	var out Pubkey
	copy(out[:], h.Sum(nil))
	return out
}

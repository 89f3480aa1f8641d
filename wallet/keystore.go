// Package wallet provides key management and battle transaction builders.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/tolbattle/crypto"
)

// ErrBadPassword is returned by LoadKey when decryption fails.
var ErrBadPassword = errors.New("wrong password or corrupted keystore")

const (
	keystoreVersion = 1
	kdfIterations   = 210_000
)

type keystoreFile struct {
	Version    int           `json:"version"`
	PubKey     crypto.Pubkey `json:"pub_key"`
	Salt       string        `json:"salt"`
	Nonce      string        `json:"nonce"`
	CipherText string        `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path.
// The AES-256-GCM key is PBKDF2-SHA256(password, salt).
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	pub := priv.Public()
	// the public key is bound as associated data so it cannot be swapped
	cipherText := gcm.Seal(nil, nonce, priv, pub[:])

	ks := keystoreFile{
		Version:    keystoreVersion,
		PubKey:     pub,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	if ks.Version != keystoreVersion {
		return nil, fmt.Errorf("keystore %s: unsupported version %d", path, ks.Version)
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrBadPassword
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, ks.PubKey[:])
	if err != nil {
		return nil, ErrBadPassword
	}
	priv := crypto.PrivateKey(privBytes)
	if priv.Public() != ks.PubKey {
		return nil, ErrBadPassword
	}
	return priv, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

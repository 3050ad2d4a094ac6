// Package wallet holds the transaction signers used for trade execution and
// the encrypted key file format of the hot wallet.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// keyFile is the on-disk format of an encrypted signing key. PublicKey is
// stored in clear so the owner can be checked without the passphrase.
type keyFile struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// GenerateSeed returns a fresh 32-byte ed25519 seed.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("wallet: generating seed: %w", err)
	}
	return seed, nil
}

// ParseSeed decodes a hex ed25519 seed. A 64-byte expanded private key is
// accepted too; its first half is the seed.
func ParseSeed(seedHex string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid key hex: %w", err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return b, nil
	case ed25519.PrivateKeySize:
		return b[:ed25519.SeedSize], nil
	default:
		return nil, fmt.Errorf("wallet: expected 32-byte seed, got %d bytes", len(b))
	}
}

// EncryptKey encrypts an ed25519 seed with PBKDF2-HMAC-SHA256 key derivation
// and AES-256-GCM, returning the JSON key file.
func EncryptKey(seed []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("wallet: passphrase must not be empty")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet: expected 32-byte seed, got %d bytes", len(seed))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: generating salt: %w", err)
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: generating nonce: %w", err)
	}

	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	out := keyFile{
		Version:    currentVersion,
		PublicKey:  hex.EncodeToString(pub),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, seed, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey.
func DecryptKey(data []byte, passphrase string) (ed25519.PrivateKey, error) {
	if passphrase == "" {
		return nil, errors.New("wallet: passphrase must not be empty")
	}

	var stored keyFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("wallet: parsing key file: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("wallet: unsupported key file version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: decryption failed (wrong passphrase?): %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet: key file holds %d bytes, want 32", len(seed))
	}

	key := ed25519.NewKeyFromSeed(seed)
	if stored.PublicKey != "" && stored.PublicKey != hex.EncodeToString(key.Public().(ed25519.PublicKey)) {
		return nil, errors.New("wallet: public key does not match decrypted seed")
	}
	return key, nil
}

// LoadKey reads and decrypts the key file at path.
func LoadKey(path, passphrase string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("wallet: no key file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: reading key file: %w", err)
	}
	return DecryptKey(data, passphrase)
}

// WriteKey encrypts seed and writes it to path with owner-only permissions.
// An existing file is never overwritten.
func WriteKey(path string, seed []byte, passphrase string) error {
	data, err := EncryptKey(seed, passphrase)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("wallet: creating key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("wallet: writing key file: %w", err)
	}
	return f.Close()
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("wallet: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: creating GCM: %w", err)
	}
	return gcm, nil
}

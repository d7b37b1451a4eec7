// Package vault derives per-expedition keys from the owner secret and seals
// real participant identifiers so they are persisted only in authenticated,
// encrypted form. Keys are derived inside each call and never cached.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/kkkkikiki/expedition/internal/model"
)

const (
	keyLength = 32

	// DefaultIterations is the PBKDF2 work factor used when the caller does
	// not configure one. Raising it slows brute force against the owner
	// secret at the cost of per-call latency.
	DefaultIterations = 120_000

	encryptInfo   = "brambler/v1/encrypt"
	integrityInfo = "brambler/v1/integrity"
	digestInfo    = "brambler/v1/identity-digest"
)

var (
	// ErrKeyDerivation indicates an empty secret or malformed salt.
	ErrKeyDerivation = errors.New("vault: key derivation failed")
	// ErrIntegrity indicates a tag mismatch or undecryptable payload. It is
	// returned deterministically for tampered and cross-expedition ciphertext
	// alike; no partially decrypted data ever escapes.
	ErrIntegrity = errors.New("vault: integrity check failed")
)

// Keys holds the two independent keys derived for one expedition.
type Keys struct {
	Encryption []byte
	Integrity  []byte
}

// NewSalt generates a fresh per-expedition salt from a cryptographic source.
func NewSalt() ([]byte, error) {
	salt := make([]byte, model.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKeys stretches the owner secret with the expedition salt and expands
// the result into independent encryption and integrity keys. The two keys
// come from domain-separated HKDF expansions, never from key reuse.
func DeriveKeys(secret string, salt []byte, iterations int) (Keys, error) {
	if strings.TrimSpace(secret) == "" {
		return Keys{}, fmt.Errorf("%w: empty secret", ErrKeyDerivation)
	}
	if len(salt) != model.SaltLength {
		return Keys{}, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKeyDerivation, model.SaltLength, len(salt))
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	master := pbkdf2.Key([]byte(secret), salt, iterations, keyLength, sha256.New)

	enc, err := expand(master, encryptInfo)
	if err != nil {
		return Keys{}, err
	}
	integ, err := expand(master, integrityInfo)
	if err != nil {
		return Keys{}, err
	}
	return Keys{Encryption: enc, Integrity: integ}, nil
}

func expand(master []byte, info string) ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, master, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("%w: expand %s: %v", ErrKeyDerivation, info, err)
	}
	return key, nil
}

// EncryptMapping seals a real identifier under the expedition keys. The
// returned ciphertext is nonce-prefixed AES-GCM output; the tag is an HMAC
// over the ciphertext and the expedition context, binding the payload to its
// expedition so it cannot be replayed under another one.
func EncryptMapping(identifier string, keys Keys, context string) (ciphertext, tag []byte, err error) {
	if identifier == "" {
		return nil, nil, errors.New("vault: identifier is required")
	}
	aead, err := newAEAD(keys.Encryption)
	if err != nil {
		return nil, nil, err
	}

	// AES-GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(identifier), []byte(context))
	ciphertext = append(nonce, sealed...)
	return ciphertext, sealTag(keys.Integrity, ciphertext, context), nil
}

// DecryptMapping recovers a real identifier. The tag is recomputed and
// compared in constant time before any decryption happens; every failure mode
// collapses into ErrIntegrity.
func DecryptMapping(ciphertext, tag []byte, keys Keys, context string) (string, error) {
	if !hmac.Equal(sealTag(keys.Integrity, ciphertext, context), tag) {
		return "", ErrIntegrity
	}
	aead, err := newAEAD(keys.Encryption)
	if err != nil {
		return "", ErrIntegrity
	}
	if len(ciphertext) < aead.NonceSize() {
		return "", ErrIntegrity
	}
	nonce := ciphertext[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], []byte(context))
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}

// IdentityDigest computes the keyed blind index used to look a participant up
// by real identifier without persisting the identifier itself.
func IdentityDigest(keys Keys, identifier string) []byte {
	mac := hmac.New(sha256.New, keys.Integrity)
	mac.Write([]byte(digestInfo))
	mac.Write([]byte{0})
	mac.Write([]byte(identifier))
	return mac.Sum(nil)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// sealTag binds ciphertext to its expedition context. A zero byte separates
// the two inputs so boundary-shifted values cannot collide.
func sealTag(key, ciphertext []byte, context string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(context))
	mac.Write([]byte{0})
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

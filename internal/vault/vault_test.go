package vault

import (
	"bytes"
	"errors"
	"testing"
)

// testIterations keeps the PBKDF2 work factor small so the suite stays fast.
const testIterations = 1000

func testSalt() []byte {
	return []byte("0123456789abcdef")
}

func TestDeriveKeysProducesIndependentKeys(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	if len(keys.Encryption) != 32 || len(keys.Integrity) != 32 {
		t.Fatalf("expected 32-byte keys, got %d and %d", len(keys.Encryption), len(keys.Integrity))
	}
	if bytes.Equal(keys.Encryption, keys.Integrity) {
		t.Fatal("encryption and integrity keys must differ")
	}

	again, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys again: %v", err)
	}
	if !bytes.Equal(keys.Encryption, again.Encryption) || !bytes.Equal(keys.Integrity, again.Integrity) {
		t.Fatal("derivation must be deterministic for the same secret and salt")
	}

	otherSalt, err := DeriveKeys("owner-secret", []byte("fedcba9876543210"), testIterations)
	if err != nil {
		t.Fatalf("derive keys with other salt: %v", err)
	}
	if bytes.Equal(keys.Encryption, otherSalt.Encryption) {
		t.Fatal("different salts must yield different keys")
	}
}

func TestDeriveKeysValidation(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		salt   []byte
	}{
		{name: "empty secret", secret: "", salt: testSalt()},
		{name: "whitespace secret", secret: "   ", salt: testSalt()},
		{name: "short salt", secret: "secret", salt: []byte("short")},
		{name: "nil salt", secret: "secret", salt: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveKeys(tt.secret, tt.salt, testIterations); !errors.Is(err, ErrKeyDerivation) {
				t.Fatalf("expected ErrKeyDerivation, got %v", err)
			}
		})
	}
}

func TestSealRoundTrip(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}

	identifiers := []string{"alice", "bob@example.com", "участник", "x"}
	for _, id := range identifiers {
		ciphertext, tag, err := EncryptMapping(id, keys, "expedition:7")
		if err != nil {
			t.Fatalf("encrypt %q: %v", id, err)
		}

		plain, err := DecryptMapping(ciphertext, tag, keys, "expedition:7")
		if err != nil {
			t.Fatalf("decrypt %q: %v", id, err)
		}
		if plain != id {
			t.Fatalf("round trip mismatch: got %q, want %q", plain, id)
		}
	}
}

func TestEncryptMappingRequiresIdentifier(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	if _, _, err := EncryptMapping("", keys, "expedition:7"); err == nil {
		t.Fatal("expected error for empty identifier")
	}
}

func TestTamperedPayloadFailsIntegrity(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	ciphertext, tag, err := EncryptMapping("alice", keys, "expedition:7")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Flip one bit at every byte position of the ciphertext.
	for i := range ciphertext {
		mutated := make([]byte, len(ciphertext))
		copy(mutated, ciphertext)
		mutated[i] ^= 0x01
		if _, err := DecryptMapping(mutated, tag, keys, "expedition:7"); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("bit flip at ciphertext byte %d: expected ErrIntegrity, got %v", i, err)
		}
	}

	// Flip one bit at every byte position of the tag.
	for i := range tag {
		mutated := make([]byte, len(tag))
		copy(mutated, tag)
		mutated[i] ^= 0x01
		if _, err := DecryptMapping(ciphertext, mutated, keys, "expedition:7"); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("bit flip at tag byte %d: expected ErrIntegrity, got %v", i, err)
		}
	}

	// Truncated ciphertext must also be rejected.
	if _, err := DecryptMapping(ciphertext[:4], tag, keys, "expedition:7"); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("truncated ciphertext: expected ErrIntegrity, got %v", err)
	}
}

func TestCrossExpeditionReplayFailsIntegrity(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	ciphertext, tag, err := EncryptMapping("alice", keys, "expedition:7")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := DecryptMapping(ciphertext, tag, keys, "expedition:8"); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("replayed ciphertext under other expedition: expected ErrIntegrity, got %v", err)
	}
}

func TestWrongSecretFailsIntegrity(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}
	ciphertext, tag, err := EncryptMapping("alice", keys, "expedition:7")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	wrongKeys, err := DeriveKeys("not-the-owner", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive wrong keys: %v", err)
	}
	if _, err := DecryptMapping(ciphertext, tag, wrongKeys, "expedition:7"); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("wrong secret: expected ErrIntegrity, got %v", err)
	}
}

func TestIdentityDigest(t *testing.T) {
	keys, err := DeriveKeys("owner-secret", testSalt(), testIterations)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}

	alice := IdentityDigest(keys, "alice")
	if !bytes.Equal(alice, IdentityDigest(keys, "alice")) {
		t.Fatal("digest must be stable for the same identifier")
	}
	if bytes.Equal(alice, IdentityDigest(keys, "bob")) {
		t.Fatal("distinct identifiers must not share a digest")
	}

	otherKeys, err := DeriveKeys("owner-secret", []byte("fedcba9876543210"), testIterations)
	if err != nil {
		t.Fatalf("derive keys with other salt: %v", err)
	}
	if bytes.Equal(alice, IdentityDigest(otherKeys, "alice")) {
		t.Fatal("digests must be expedition-scoped via the salt")
	}
}

func TestNewSaltLengthAndVariety(t *testing.T) {
	first, err := NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	second, err := NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	if len(first) != 16 || len(second) != 16 {
		t.Fatalf("expected 16-byte salts, got %d and %d", len(first), len(second))
	}
	if bytes.Equal(first, second) {
		t.Fatal("salts must be random")
	}
}

package model

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyPseudonym indicates a participant row without a pseudonym.
	ErrEmptyPseudonym = errors.New("participant pseudonym is required")
	// ErrMissingIdentitySeal indicates a participant row missing its
	// ciphertext, tag or lookup digest.
	ErrMissingIdentitySeal = errors.New("participant identity seal is incomplete")
)

// Participant represents an anonymized member of an expedition. The real
// identifier is stored only as authenticated ciphertext; the digest is a
// keyed blind index used for idempotent lookup, never reversible to the
// identifier without the owner secret.
type Participant struct {
	ID                 int64     `db:"id" json:"id"`
	ExpeditionID       int64     `db:"expedition_id" json:"expedition_id"`
	Pseudonym          string    `db:"pseudonym" json:"pseudonym"`
	IdentityCiphertext []byte    `db:"identity_ciphertext" json:"-"`
	IdentityTag        []byte    `db:"identity_tag" json:"-"`
	IdentityDigest     []byte    `db:"identity_digest" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Validate checks invariants on a row loaded from storage.
func (p *Participant) Validate() error {
	if strings.TrimSpace(p.Pseudonym) == "" {
		return ErrEmptyPseudonym
	}
	if len(p.IdentityCiphertext) == 0 || len(p.IdentityTag) == 0 || len(p.IdentityDigest) == 0 {
		return ErrMissingIdentitySeal
	}
	return nil
}

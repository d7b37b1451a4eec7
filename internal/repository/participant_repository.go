package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kkkkikiki/expedition/internal/model"
)

// ParticipantRepository handles participant data operations
type ParticipantRepository struct {
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository() *ParticipantRepository {
	return &ParticipantRepository{}
}

// Insert creates a participant and fills in its generated ID. Unique
// constraints on (expedition_id, identity_digest) and
// (expedition_id, pseudonym) back the allocator's guarantees at the
// storage layer.
func (r *ParticipantRepository) Insert(db DBExecutor, p *model.Participant) error {
	query := `
		INSERT INTO participants (expedition_id, pseudonym, identity_ciphertext, identity_tag, identity_digest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := db.Get(&p.ID, query,
		p.ExpeditionID, p.Pseudonym, p.IdentityCiphertext, p.IdentityTag, p.IdentityDigest, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	return nil
}

// GetByDigest looks a participant up by the keyed identity digest, the blind
// index that stands in for the plaintext identifier.
func (r *ParticipantRepository) GetByDigest(db DBExecutor, expeditionID int64, digest []byte) (*model.Participant, error) {
	query := `
		SELECT id, expedition_id, pseudonym, identity_ciphertext, identity_tag, identity_digest, created_at
		FROM participants
		WHERE expedition_id = $1 AND identity_digest = $2
	`

	var p model.Participant
	err := db.Get(&p, query, expeditionID, digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant by digest: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("malformed participant row %d: %w", p.ID, err)
	}

	return &p, nil
}

// ListByExpedition returns all participants of one expedition.
func (r *ParticipantRepository) ListByExpedition(db DBExecutor, expeditionID int64) ([]model.Participant, error) {
	query := `
		SELECT id, expedition_id, pseudonym, identity_ciphertext, identity_tag, identity_digest, created_at
		FROM participants
		WHERE expedition_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var participants []model.Participant
	if err := db.Select(&participants, query, expeditionID); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	return participants, nil
}

// ListPseudonyms returns the pseudonyms already taken within one expedition.
func (r *ParticipantRepository) ListPseudonyms(db DBExecutor, expeditionID int64) ([]string, error) {
	query := `
		SELECT pseudonym
		FROM participants
		WHERE expedition_id = $1
	`

	var pseudonyms []string
	if err := db.Select(&pseudonyms, query, expeditionID); err != nil {
		return nil, fmt.Errorf("failed to list pseudonyms: %w", err)
	}

	return pseudonyms, nil
}

// CountByExpedition returns how many participants an expedition has.
func (r *ParticipantRepository) CountByExpedition(db DBExecutor, expeditionID int64) (int64, error) {
	var count int64
	err := db.Get(&count, `SELECT COUNT(*) FROM participants WHERE expedition_id = $1`, expeditionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	return count, nil
}

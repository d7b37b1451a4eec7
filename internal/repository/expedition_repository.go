package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/expedition/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
}

var (
	// ErrNotFound indicates a missing row.
	ErrNotFound = errors.New("not found")
	// ErrStockExceeded indicates a conditional stock update that matched no
	// row because remaining stock was insufficient.
	ErrStockExceeded = errors.New("stock exceeded")
	// ErrStaleStatus indicates a status update that matched no row because the
	// expedition was no longer active.
	ErrStaleStatus = errors.New("expedition status already terminal")
)

// ExpeditionRepository handles expedition data operations
type ExpeditionRepository struct {
	// DB-only repository - no cache dependencies
}

// NewExpeditionRepository creates a new expedition repository
func NewExpeditionRepository() *ExpeditionRepository {
	return &ExpeditionRepository{}
}

// Create inserts a new expedition and fills in its generated ID.
func (r *ExpeditionRepository) Create(db DBExecutor, e *model.Expedition) error {
	query := `
		INSERT INTO expeditions (name, owner_id, status, deadline, salt, total_value_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := db.Get(&e.ID, query,
		e.Name, e.OwnerID, e.Status, e.Deadline, e.Salt, e.TotalValueCents, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expedition: %w", err)
	}

	return nil
}

// Get retrieves an expedition by ID and validates the row at the boundary.
func (r *ExpeditionRepository) Get(db DBExecutor, id int64) (*model.Expedition, error) {
	query := `
		SELECT id, name, owner_id, status, deadline, salt, items_locked_at, total_value_cents, created_at, updated_at
		FROM expeditions
		WHERE id = $1
	`

	var e model.Expedition
	err := db.Get(&e, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get expedition: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("malformed expedition row %d: %w", id, err)
	}

	return &e, nil
}

// GetForUpdate locks the expedition row for the duration of the transaction.
// Every mutating flow takes this lock first, serializing all mutation of one
// expedition while leaving other expeditions fully parallel.
func (r *ExpeditionRepository) GetForUpdate(tx *sqlx.Tx, id int64) (*model.Expedition, error) {
	query := `
		SELECT id, name, owner_id, status, deadline, salt, items_locked_at, total_value_cents, created_at, updated_at
		FROM expeditions
		WHERE id = $1
		FOR UPDATE
	`

	var e model.Expedition
	err := tx.Get(&e, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock expedition: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("malformed expedition row %d: %w", id, err)
	}

	return &e, nil
}

// UpdateStatus moves an active expedition into a terminal status. The WHERE
// clause re-checks the current status so the transition stays monotonic even
// if the in-memory copy is stale.
func (r *ExpeditionRepository) UpdateStatus(db DBExecutor, id int64, next model.Status, now time.Time) error {
	query := `
		UPDATE expeditions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'active'
	`

	result, err := db.Exec(query, next, now, id)
	if err != nil {
		return fmt.Errorf("failed to update expedition status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleStatus
	}

	return nil
}

// MarkItemsLocked stamps the moment the first participant joined. Idempotent:
// a second call leaves the original timestamp in place.
func (r *ExpeditionRepository) MarkItemsLocked(db DBExecutor, id int64, now time.Time) error {
	query := `
		UPDATE expeditions
		SET items_locked_at = $1, updated_at = $1
		WHERE id = $2 AND items_locked_at IS NULL
	`

	if _, err := db.Exec(query, now, id); err != nil {
		return fmt.Errorf("failed to mark items locked: %w", err)
	}

	return nil
}

// AddTotalValue accumulates the cost of a consumption onto the expedition.
func (r *ExpeditionRepository) AddTotalValue(db DBExecutor, id int64, cents int64, now time.Time) error {
	query := `
		UPDATE expeditions
		SET total_value_cents = total_value_cents + $1, updated_at = $2
		WHERE id = $3
	`

	if _, err := db.Exec(query, cents, now, id); err != nil {
		return fmt.Errorf("failed to add total value: %w", err)
	}

	return nil
}

// ListOverdue returns active expeditions whose deadline has passed. Overdue is
// derived at query time, never persisted.
func (r *ExpeditionRepository) ListOverdue(db DBExecutor, now time.Time) ([]model.Expedition, error) {
	query := `
		SELECT id, name, owner_id, status, deadline, salt, items_locked_at, total_value_cents, created_at, updated_at
		FROM expeditions
		WHERE status = 'active' AND deadline < $1
		ORDER BY deadline ASC
	`

	var expeditions []model.Expedition
	if err := db.Select(&expeditions, query, now); err != nil {
		return nil, fmt.Errorf("failed to list overdue expeditions: %w", err)
	}

	return expeditions, nil
}

// Delete removes an expedition; items, participants and events cascade.
func (r *ExpeditionRepository) Delete(db DBExecutor, id int64) error {
	result, err := db.Exec(`DELETE FROM expeditions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expedition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

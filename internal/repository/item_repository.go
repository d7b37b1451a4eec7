package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/expedition/internal/model"
)

// ItemRepository handles committed item data operations
type ItemRepository struct {
}

// NewItemRepository creates a new item repository
func NewItemRepository() *ItemRepository {
	return &ItemRepository{}
}

// InsertItems creates committed items in batch within an existing transaction.
func (r *ItemRepository) InsertItems(tx *sqlx.Tx, expeditionID int64, items []model.CommittedItem, createdAt time.Time) ([]model.CommittedItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	valuesClause := make([]string, len(items))
	args := make([]interface{}, 0, len(items)*6)

	for i := range items {
		valuesClause[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			i*6+1, i*6+2, i*6+3, i*6+4, i*6+5, i*6+6)
		args = append(args, expeditionID, items[i].Product, items[i].Grade,
			items[i].QuantityCommitted, items[i].UnitPriceCents, createdAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO committed_items (expedition_id, product, grade, quantity_committed, unit_price_cents, created_at)
		VALUES %s
		RETURNING id, expedition_id, product, grade, quantity_committed, quantity_consumed, unit_price_cents, created_at
	`, strings.Join(valuesClause, ", "))

	var inserted []model.CommittedItem
	if err := tx.Select(&inserted, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert committed items: %w", err)
	}

	return inserted, nil
}

// Get retrieves a committed item by ID.
func (r *ItemRepository) Get(db DBExecutor, id int64) (*model.CommittedItem, error) {
	query := `
		SELECT id, expedition_id, product, grade, quantity_committed, quantity_consumed, unit_price_cents, created_at
		FROM committed_items
		WHERE id = $1
	`

	var item model.CommittedItem
	err := db.Get(&item, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get committed item: %w", err)
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("malformed item row %d: %w", id, err)
	}

	return &item, nil
}

// ListByExpedition returns all committed items of one expedition.
func (r *ItemRepository) ListByExpedition(db DBExecutor, expeditionID int64) ([]model.CommittedItem, error) {
	query := `
		SELECT id, expedition_id, product, grade, quantity_committed, quantity_consumed, unit_price_cents, created_at
		FROM committed_items
		WHERE expedition_id = $1
		ORDER BY id ASC
	`

	var items []model.CommittedItem
	if err := db.Select(&items, query, expeditionID); err != nil {
		return nil, fmt.Errorf("failed to list committed items: %w", err)
	}

	return items, nil
}

// ReserveConsumption atomically checks and increments consumption for one
// item. The WHERE clause guarantees quantity_consumed never exceeds
// quantity_committed even under concurrent callers; a matched row means the
// full requested quantity was reserved, an unmatched one means nothing was.
func (r *ItemRepository) ReserveConsumption(tx *sqlx.Tx, itemID, quantity int64) error {
	query := `
		UPDATE committed_items
		SET quantity_consumed = quantity_consumed + $1
		WHERE id = $2 AND quantity_consumed + $1 <= quantity_committed
	`

	result, err := tx.Exec(query, quantity, itemID)
	if err != nil {
		return fmt.Errorf("failed to reserve consumption: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStockExceeded
	}

	return nil
}

package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kkkkikiki/expedition/internal/model"
)

// EventRepository handles consumption event and payment adjustment operations.
// Both tables are append-only; history is adjusted by new rows, never rewritten.
type EventRepository struct {
}

// NewEventRepository creates a new event repository
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

// Insert appends a consumption event and fills in its generated ID.
func (r *EventRepository) Insert(db DBExecutor, e *model.ConsumptionEvent) error {
	query := `
		INSERT INTO consumption_events (expedition_id, item_id, participant_id, quantity, total_cost_cents, upfront_paid_cents, payment_status, payment_term, sale_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := db.Get(&e.ID, query,
		e.ExpeditionID, e.ItemID, e.ParticipantID, e.Quantity, e.TotalCostCents,
		e.UpfrontPaidCents, e.PaymentStatus, e.PaymentTerm, e.SaleRef, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert consumption event: %w", err)
	}

	return nil
}

// Get retrieves a consumption event by ID.
func (r *EventRepository) Get(db DBExecutor, id int64) (*model.ConsumptionEvent, error) {
	query := `
		SELECT id, expedition_id, item_id, participant_id, quantity, total_cost_cents, upfront_paid_cents, payment_status, payment_term, sale_ref, created_at
		FROM consumption_events
		WHERE id = $1
	`

	var e model.ConsumptionEvent
	err := db.Get(&e, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get consumption event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("malformed event row %d: %w", id, err)
	}

	return &e, nil
}

// ListByExpedition returns all consumption events of one expedition in
// chronological order.
func (r *EventRepository) ListByExpedition(db DBExecutor, expeditionID int64) ([]model.ConsumptionEvent, error) {
	query := `
		SELECT id, expedition_id, item_id, participant_id, quantity, total_cost_cents, upfront_paid_cents, payment_status, payment_term, sale_ref, created_at
		FROM consumption_events
		WHERE expedition_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var events []model.ConsumptionEvent
	if err := db.Select(&events, query, expeditionID); err != nil {
		return nil, fmt.Errorf("failed to list consumption events: %w", err)
	}

	return events, nil
}

// InsertAdjustment appends a payment adjustment against an existing event.
func (r *EventRepository) InsertAdjustment(db DBExecutor, a *model.PaymentAdjustment) error {
	query := `
		INSERT INTO payment_adjustments (event_id, amount_cents, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := db.Get(&a.ID, query, a.EventID, a.AmountCents, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment adjustment: %w", err)
	}

	return nil
}

// SumAdjustments returns the total adjusted amount recorded against an event.
func (r *EventRepository) SumAdjustments(db DBExecutor, eventID int64) (int64, error) {
	var sum int64
	err := db.Get(&sum, `SELECT COALESCE(SUM(amount_cents), 0) FROM payment_adjustments WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payment adjustments: %w", err)
	}

	return sum, nil
}

// SumAdjustmentsByExpedition returns adjusted totals per event for one
// expedition, used by the read-side payment status derivation.
func (r *EventRepository) SumAdjustmentsByExpedition(db DBExecutor, expeditionID int64) (map[int64]int64, error) {
	query := `
		SELECT a.event_id, SUM(a.amount_cents) AS total
		FROM payment_adjustments a
		JOIN consumption_events e ON e.id = a.event_id
		WHERE e.expedition_id = $1
		GROUP BY a.event_id
	`

	rows := []struct {
		EventID int64 `db:"event_id"`
		Total   int64 `db:"total"`
	}{}
	if err := db.Select(&rows, query, expeditionID); err != nil {
		return nil, fmt.Errorf("failed to sum payment adjustments: %w", err)
	}

	sums := make(map[int64]int64, len(rows))
	for _, row := range rows {
		sums[row.EventID] = row.Total
	}

	return sums, nil
}

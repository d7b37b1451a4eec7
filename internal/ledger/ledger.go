// Package ledger holds the pure stock and payment rules for expeditions.
// Everything here operates on in-memory values; the repository layer applies
// the same rules as SQL guards so the database remains the source of truth
// under concurrency.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/expedition/internal/model"
)

var (
	// ErrItemsLocked indicates an attempt to change committed items after the
	// first participant joined.
	ErrItemsLocked = errors.New("committed items are locked")
	// ErrInsufficientStock indicates a consumption exceeding remaining stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCampaignClosed indicates a mutation on a completed or cancelled
	// expedition.
	ErrCampaignClosed = errors.New("expedition is closed")
	// ErrInvalidPayment indicates a negative upfront amount or an over-payment.
	ErrInvalidPayment = errors.New("invalid payment amount")
)

// ValidateNewItems checks a batch of items about to be committed.
func ValidateNewItems(items []model.CommittedItem) error {
	if len(items) == 0 {
		return errors.New("at least one item is required")
	}
	for idx := range items {
		if err := items[idx].Validate(); err != nil {
			return fmt.Errorf("item %d: %w", idx, err)
		}
		if items[idx].QuantityConsumed != 0 {
			return fmt.Errorf("item %d: new items must have zero consumption", idx)
		}
	}
	return nil
}

// EnsureItemsUnlocked gates changes to the committed item set. The set
// freezes the moment the first participant joins, whether that shows through
// the lock timestamp or the participant count.
func EnsureItemsUnlocked(lockedAt *time.Time, participants int64) error {
	if lockedAt != nil {
		return fmt.Errorf("%w: locked at %s", ErrItemsLocked, lockedAt.Format(time.RFC3339))
	}
	if participants > 0 {
		return fmt.Errorf("%w: expedition has %d participants", ErrItemsLocked, participants)
	}
	return nil
}

// Reserve applies a check-and-increment against one item. A request that
// exceeds remaining stock is rejected whole, never clamped.
func Reserve(item *model.CommittedItem, quantity int64) error {
	if quantity < 1 {
		return model.ErrInvalidEventQuantity
	}
	// Compared against the remainder rather than summed so huge quantities
	// cannot overflow past the guard.
	if quantity > item.QuantityCommitted-item.QuantityConsumed {
		return fmt.Errorf("%w: %d requested, %d remaining", ErrInsufficientStock, quantity, item.Remaining())
	}
	item.QuantityConsumed += quantity
	return nil
}

// Cost computes the total cost of a consumption at the item's immutable
// unit price.
func Cost(quantity, unitPriceCents int64) int64 {
	return quantity * unitPriceCents
}

// ClassifyPayment maps an upfront amount against the total cost to a payment
// status. Negative amounts and over-payments are rejected.
func ClassifyPayment(upfrontCents, totalCents int64) (model.PaymentStatus, error) {
	switch {
	case upfrontCents < 0:
		return "", fmt.Errorf("%w: negative upfront amount", ErrInvalidPayment)
	case upfrontCents > totalCents:
		return "", fmt.Errorf("%w: upfront %d exceeds total %d", ErrInvalidPayment, upfrontCents, totalCents)
	case upfrontCents == totalCents:
		return model.PaymentPaid, nil
	case upfrontCents == 0:
		return model.PaymentPending, nil
	default:
		return model.PaymentPartial, nil
	}
}

// Completed reports whether every committed item is fully consumed. An
// expedition with no items never completes by consumption.
func Completed(items []model.CommittedItem) bool {
	if len(items) == 0 {
		return false
	}
	for idx := range items {
		if !items[idx].Exhausted() {
			return false
		}
	}
	return true
}

// EffectiveStatus derives the current payment status of an event from its
// upfront amount plus all appended adjustments. History is never rewritten;
// this is the read-side view of the append-only ledger.
func EffectiveStatus(event *model.ConsumptionEvent, adjustedCents int64) model.PaymentStatus {
	paid := event.UpfrontPaidCents + adjustedCents
	switch {
	case paid >= event.TotalCostCents && event.TotalCostCents > 0:
		return model.PaymentPaid
	case paid > 0:
		return model.PaymentPartial
	case event.TotalCostCents == 0:
		return model.PaymentPaid
	default:
		return model.PaymentPending
	}
}

// ValidateAdjustment checks a settlement amount against the outstanding
// balance of an event.
func ValidateAdjustment(event *model.ConsumptionEvent, alreadyAdjustedCents, amountCents int64) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: adjustment must be positive", ErrInvalidPayment)
	}
	outstanding := event.TotalCostCents - event.UpfrontPaidCents - alreadyAdjustedCents
	if amountCents > outstanding {
		return fmt.Errorf("%w: adjustment %d exceeds outstanding %d", ErrInvalidPayment, amountCents, outstanding)
	}
	return nil
}

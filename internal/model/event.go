package model

import (
	"errors"
	"fmt"
	"time"
)

// PaymentStatus is the payment state of a consumption event.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

var (
	// ErrInvalidPaymentStatus indicates a persisted status outside the known set.
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	// ErrInvalidEventQuantity indicates a consumption event with quantity < 1.
	ErrInvalidEventQuantity = errors.New("consumption quantity must be at least 1")
)

// ConsumptionEvent records one participant taking stock from a committed item.
// Rows are append-only; later payments are recorded as PaymentAdjustment rows
// rather than rewrites of history. SaleRef is an opaque link to the external
// sale record that originated the event, stored but never interpreted.
type ConsumptionEvent struct {
	ID               int64         `db:"id" json:"id"`
	ExpeditionID     int64         `db:"expedition_id" json:"expedition_id"`
	ItemID           int64         `db:"item_id" json:"item_id"`
	ParticipantID    int64         `db:"participant_id" json:"participant_id"`
	Quantity         int64         `db:"quantity" json:"quantity"`
	TotalCostCents   int64         `db:"total_cost_cents" json:"total_cost_cents"`
	UpfrontPaidCents int64         `db:"upfront_paid_cents" json:"upfront_paid_cents"`
	PaymentStatus    PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentTerm      string        `db:"payment_term" json:"payment_term"`
	SaleRef          string        `db:"sale_ref" json:"sale_ref,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// PaymentAdjustment is an append-only record of money received against an
// existing consumption event.
type PaymentAdjustment struct {
	ID          int64     `db:"id" json:"id"`
	EventID     int64     `db:"event_id" json:"event_id"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ParsePaymentStatus validates a persisted payment status value.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPartial, PaymentPaid:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, s)
}

// Validate checks invariants on a row loaded from storage.
func (e *ConsumptionEvent) Validate() error {
	if e.Quantity < 1 {
		return ErrInvalidEventQuantity
	}
	if _, err := ParsePaymentStatus(string(e.PaymentStatus)); err != nil {
		return err
	}
	return nil
}

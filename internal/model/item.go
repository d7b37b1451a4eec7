package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Grade is the quality grade of a committed item.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

var (
	// ErrInvalidGrade indicates a grade outside {A, B, C}.
	ErrInvalidGrade = errors.New("item grade must be A, B or C")
	// ErrInvalidItemQuantity indicates a non-positive committed quantity.
	ErrInvalidItemQuantity = errors.New("item quantity must be positive")
	// ErrInvalidItemPrice indicates a negative unit price.
	ErrInvalidItemPrice = errors.New("item unit price must not be negative")
	// ErrEmptyProduct indicates a missing product reference.
	ErrEmptyProduct = errors.New("item product is required")
	// ErrConsumedExceedsCommitted indicates a persisted row where consumption
	// ran past the committed quantity.
	ErrConsumedExceedsCommitted = errors.New("quantity consumed exceeds quantity committed")
)

// CommittedItem represents a good made available within an expedition.
// All columns except quantity_consumed are immutable once the expedition's
// item set is locked.
type CommittedItem struct {
	ID                int64     `db:"id" json:"id"`
	ExpeditionID      int64     `db:"expedition_id" json:"expedition_id"`
	Product           string    `db:"product" json:"product"`
	Grade             Grade     `db:"grade" json:"grade"`
	QuantityCommitted int64     `db:"quantity_committed" json:"quantity_committed"`
	QuantityConsumed  int64     `db:"quantity_consumed" json:"quantity_consumed"`
	UnitPriceCents    int64     `db:"unit_price_cents" json:"unit_price_cents"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// ParseGrade validates a persisted grade value.
func ParseGrade(s string) (Grade, error) {
	switch Grade(s) {
	case GradeA, GradeB, GradeC:
		return Grade(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGrade, s)
}

// Remaining returns the quantity still available for consumption.
func (i *CommittedItem) Remaining() int64 {
	return i.QuantityCommitted - i.QuantityConsumed
}

// Exhausted reports whether the committed quantity is fully consumed.
func (i *CommittedItem) Exhausted() bool {
	return i.QuantityConsumed == i.QuantityCommitted
}

// Validate checks invariants on a row loaded from storage.
func (i *CommittedItem) Validate() error {
	if strings.TrimSpace(i.Product) == "" {
		return ErrEmptyProduct
	}
	if _, err := ParseGrade(string(i.Grade)); err != nil {
		return err
	}
	if i.QuantityCommitted <= 0 {
		return ErrInvalidItemQuantity
	}
	if i.UnitPriceCents < 0 {
		return ErrInvalidItemPrice
	}
	if i.QuantityConsumed < 0 || i.QuantityConsumed > i.QuantityCommitted {
		return ErrConsumedExceedsCommitted
	}
	return nil
}

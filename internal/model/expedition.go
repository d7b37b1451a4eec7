package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an expedition.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrEmptyName indicates a missing expedition name.
	ErrEmptyName = errors.New("expedition name is required")
	// ErrEmptyOwner indicates a missing owner identifier.
	ErrEmptyOwner = errors.New("expedition owner is required")
	// ErrInvalidStatus indicates a status value outside the known set.
	ErrInvalidStatus = errors.New("invalid expedition status")
	// ErrInvalidSalt indicates a missing or wrong-sized key derivation salt.
	ErrInvalidSalt = errors.New("expedition salt must be 16 bytes")
	// ErrInvalidTransition indicates a status change that would reopen a
	// completed or cancelled expedition.
	ErrInvalidTransition = errors.New("expedition status transitions are one-way")
)

// SaltLength is the size of the per-expedition key derivation salt.
const SaltLength = 16

// Expedition represents a time-boxed group purchase in the database.
// The salt column is public material fed into per-expedition key derivation;
// it is not a secret.
type Expedition struct {
	ID              int64      `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	OwnerID         string     `db:"owner_id" json:"owner_id"`
	Status          Status     `db:"status" json:"status"`
	Deadline        time.Time  `db:"deadline" json:"deadline"`
	Salt            []byte     `db:"salt" json:"-"`
	ItemsLockedAt   *time.Time `db:"items_locked_at" json:"items_locked_at,omitempty"`
	TotalValueCents int64      `db:"total_value_cents" json:"total_value_cents"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ParseStatus validates a persisted status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Terminal reports whether the status accepts no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is legal. Transitions
// are monotonic: only active may move, and only into a terminal state.
func (s Status) CanTransition(next Status) bool {
	return s == StatusActive && next.Terminal()
}

// Overdue reports whether the expedition is active past its deadline. It is a
// derived predicate and never changes the stored status by itself.
func (e *Expedition) Overdue(now time.Time) bool {
	return e.Status == StatusActive && now.After(e.Deadline)
}

// Validate checks invariants on a row loaded from storage. Malformed rows are
// rejected at the boundary rather than trusted.
func (e *Expedition) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if _, err := ParseStatus(string(e.Status)); err != nil {
		return err
	}
	if len(e.Salt) != SaltLength {
		return ErrInvalidSalt
	}
	return nil
}

// NewExpedition builds an expedition ready for insertion. The salt must come
// from a cryptographic random source.
func NewExpedition(name, ownerID string, deadline time.Time, salt []byte, now time.Time) (*Expedition, error) {
	e := &Expedition{
		Name:      strings.TrimSpace(name),
		OwnerID:   strings.TrimSpace(ownerID),
		Status:    StatusActive,
		Deadline:  deadline,
		Salt:      salt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

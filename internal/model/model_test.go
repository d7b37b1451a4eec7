package model

import (
	"errors"
	"testing"
	"time"
)

func validSalt() []byte {
	return []byte("0123456789abcdef")
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{from: StatusActive, to: StatusCompleted, ok: true},
		{from: StatusActive, to: StatusCancelled, ok: true},
		{from: StatusActive, to: StatusActive, ok: false},
		{from: StatusCompleted, to: StatusActive, ok: false},
		{from: StatusCompleted, to: StatusCancelled, ok: false},
		{from: StatusCancelled, to: StatusActive, ok: false},
		{from: StatusCancelled, to: StatusCompleted, ok: false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"active", "completed", "cancelled"} {
		if _, err := ParseStatus(valid); err != nil {
			t.Fatalf("parse %q: %v", valid, err)
		}
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOverdueIsDerived(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expedition := Expedition{Status: StatusActive, Deadline: deadline}

	if expedition.Overdue(deadline.Add(-time.Minute)) {
		t.Fatal("not overdue before the deadline")
	}
	if !expedition.Overdue(deadline.Add(time.Minute)) {
		t.Fatal("overdue after the deadline")
	}

	expedition.Status = StatusCompleted
	if expedition.Overdue(deadline.Add(time.Hour)) {
		t.Fatal("terminal expeditions are never overdue")
	}
}

func TestNewExpeditionValidation(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(72 * time.Hour)

	tests := []struct {
		name    string
		expName string
		owner   string
		salt    []byte
		wantErr error
	}{
		{name: "valid", expName: "Berry Run", owner: "owner-1", salt: validSalt()},
		{name: "empty name", expName: "  ", owner: "owner-1", salt: validSalt(), wantErr: ErrEmptyName},
		{name: "empty owner", expName: "Berry Run", owner: "", salt: validSalt(), wantErr: ErrEmptyOwner},
		{name: "bad salt", expName: "Berry Run", owner: "owner-1", salt: []byte("short"), wantErr: ErrInvalidSalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expedition, err := NewExpedition(tt.expName, tt.owner, deadline, tt.salt, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("new expedition: %v", err)
			}
			if expedition.Status != StatusActive {
				t.Fatalf("new expeditions start active, got %s", expedition.Status)
			}
			if !expedition.CreatedAt.Equal(now) || !expedition.UpdatedAt.Equal(now) {
				t.Fatal("timestamps must match the creation time")
			}
		})
	}
}

func TestCommittedItemValidate(t *testing.T) {
	valid := CommittedItem{
		Product: "Berry", Grade: GradeA, QuantityCommitted: 10, QuantityConsumed: 3, UnitPriceCents: 500,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid item: %v", err)
	}

	overconsumed := valid
	overconsumed.QuantityConsumed = 11
	if err := overconsumed.Validate(); !errors.Is(err, ErrConsumedExceedsCommitted) {
		t.Fatalf("expected ErrConsumedExceedsCommitted, got %v", err)
	}

	badGrade := valid
	badGrade.Grade = "Z"
	if err := badGrade.Validate(); !errors.Is(err, ErrInvalidGrade) {
		t.Fatalf("expected ErrInvalidGrade, got %v", err)
	}
}

func TestParticipantValidate(t *testing.T) {
	valid := Participant{
		Pseudonym:          "Calico Jack",
		IdentityCiphertext: []byte{1},
		IdentityTag:        []byte{2},
		IdentityDigest:     []byte{3},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid participant: %v", err)
	}

	missingSeal := valid
	missingSeal.IdentityTag = nil
	if err := missingSeal.Validate(); !errors.Is(err, ErrMissingIdentitySeal) {
		t.Fatalf("expected ErrMissingIdentitySeal, got %v", err)
	}
}

func TestConsumptionEventValidate(t *testing.T) {
	valid := ConsumptionEvent{Quantity: 1, PaymentStatus: PaymentPending}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid event: %v", err)
	}

	zeroQuantity := valid
	zeroQuantity.Quantity = 0
	if err := zeroQuantity.Validate(); !errors.Is(err, ErrInvalidEventQuantity) {
		t.Fatalf("expected ErrInvalidEventQuantity, got %v", err)
	}

	badStatus := valid
	badStatus.PaymentStatus = "settled"
	if err := badStatus.Validate(); !errors.Is(err, ErrInvalidPaymentStatus) {
		t.Fatalf("expected ErrInvalidPaymentStatus, got %v", err)
	}
}

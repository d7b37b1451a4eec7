package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kkkkikiki/expedition/internal/model"
)

func berryItem(quantity, priceCents int64) model.CommittedItem {
	return model.CommittedItem{
		ID:                1,
		ExpeditionID:      1,
		Product:           "Berry",
		Grade:             model.GradeA,
		QuantityCommitted: quantity,
		UnitPriceCents:    priceCents,
	}
}

func TestValidateNewItems(t *testing.T) {
	tests := []struct {
		name  string
		items []model.CommittedItem
		ok    bool
	}{
		{name: "empty batch", items: nil, ok: false},
		{name: "valid", items: []model.CommittedItem{berryItem(10, 500)}, ok: true},
		{
			name: "zero quantity",
			items: []model.CommittedItem{{
				Product: "Berry", Grade: model.GradeA, QuantityCommitted: 0, UnitPriceCents: 500,
			}},
			ok: false,
		},
		{
			name: "negative price",
			items: []model.CommittedItem{{
				Product: "Berry", Grade: model.GradeA, QuantityCommitted: 1, UnitPriceCents: -1,
			}},
			ok: false,
		},
		{
			name: "bad grade",
			items: []model.CommittedItem{{
				Product: "Berry", Grade: "D", QuantityCommitted: 1, UnitPriceCents: 500,
			}},
			ok: false,
		},
		{
			name: "preconsumed",
			items: []model.CommittedItem{{
				Product: "Berry", Grade: model.GradeA, QuantityCommitted: 5, QuantityConsumed: 1, UnitPriceCents: 500,
			}},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewItems(tt.items)
			if tt.ok && err != nil {
				t.Fatalf("expected valid batch, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestReserveRejectsInsteadOfClamping(t *testing.T) {
	item := berryItem(10, 500)

	if err := Reserve(&item, 4); err != nil {
		t.Fatalf("reserve 4 of 10: %v", err)
	}
	if item.Remaining() != 6 {
		t.Fatalf("expected 6 remaining, got %d", item.Remaining())
	}

	err := Reserve(&item, 7)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if item.Remaining() != 6 {
		t.Fatalf("failed reserve must not change stock, remaining %d", item.Remaining())
	}

	if err := Reserve(&item, 6); err != nil {
		t.Fatalf("reserve exact remainder: %v", err)
	}
	if !item.Exhausted() {
		t.Fatal("item should be exhausted")
	}
}

func TestReserveHugeQuantityCannotOverflowGuard(t *testing.T) {
	item := berryItem(10, 500)
	if err := Reserve(&item, 5); err != nil {
		t.Fatalf("reserve 5 of 10: %v", err)
	}

	for _, quantity := range []int64{math.MaxInt64, math.MaxInt64 - 4} {
		if err := Reserve(&item, quantity); !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("quantity %d: expected ErrInsufficientStock, got %v", quantity, err)
		}
		if item.QuantityConsumed != 5 {
			t.Fatalf("quantity %d: consumed changed to %d", quantity, item.QuantityConsumed)
		}
	}
}

func TestEnsureItemsUnlocked(t *testing.T) {
	lockedAt := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		lockedAt     *time.Time
		participants int64
		locked       bool
	}{
		{name: "pre-lock phase", lockedAt: nil, participants: 0, locked: false},
		{name: "timestamp stamped", lockedAt: &lockedAt, participants: 0, locked: true},
		{name: "participant exists", lockedAt: nil, participants: 1, locked: true},
		{name: "both", lockedAt: &lockedAt, participants: 3, locked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureItemsUnlocked(tt.lockedAt, tt.participants)
			if tt.locked {
				if !errors.Is(err, ErrItemsLocked) {
					t.Fatalf("expected ErrItemsLocked, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected unlocked, got %v", err)
			}
		})
	}
}

func TestReserveQuantityFloor(t *testing.T) {
	item := berryItem(10, 500)
	for _, quantity := range []int64{0, -1} {
		if err := Reserve(&item, quantity); !errors.Is(err, model.ErrInvalidEventQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidEventQuantity, got %v", quantity, err)
		}
	}
}

func TestClassifyPayment(t *testing.T) {
	tests := []struct {
		name    string
		upfront int64
		total   int64
		want    model.PaymentStatus
		wantErr bool
	}{
		{name: "pending", upfront: 0, total: 2000, want: model.PaymentPending},
		{name: "partial", upfront: 500, total: 2000, want: model.PaymentPartial},
		{name: "paid", upfront: 2000, total: 2000, want: model.PaymentPaid},
		{name: "negative", upfront: -1, total: 2000, wantErr: true},
		{name: "overpaid", upfront: 2001, total: 2000, wantErr: true},
		{name: "free item", upfront: 0, total: 0, want: model.PaymentPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyPayment(tt.upfront, tt.total)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayment) {
					t.Fatalf("expected ErrInvalidPayment, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

// TestCompletionOrderIndependence drives two items of quantities (3, 2)
// through all interleavings of the five unit consumptions that exhaust them.
// Completion must trigger exactly on the fifth, regardless of order.
func TestCompletionOrderIndependence(t *testing.T) {
	// Each mask bit assigns one of the five steps to the first item; valid
	// interleavings use the first item exactly three times.
	for mask := 0; mask < 1<<5; mask++ {
		firstSteps := 0
		for bit := 0; bit < 5; bit++ {
			if mask&(1<<bit) != 0 {
				firstSteps++
			}
		}
		if firstSteps != 3 {
			continue
		}

		items := []model.CommittedItem{
			{ID: 1, Product: "Berry", Grade: model.GradeA, QuantityCommitted: 3, UnitPriceCents: 100},
			{ID: 2, Product: "Moss", Grade: model.GradeB, QuantityCommitted: 2, UnitPriceCents: 100},
		}

		for bit := 0; bit < 5; bit++ {
			if Completed(items) {
				t.Fatalf("mask %05b: completed before step %d", mask, bit+1)
			}
			target := &items[1]
			if mask&(1<<bit) != 0 {
				target = &items[0]
			}
			if err := Reserve(target, 1); err != nil {
				t.Fatalf("mask %05b: reserve step %d: %v", mask, bit+1, err)
			}
		}

		if !Completed(items) {
			t.Fatalf("mask %05b: not completed after all five consumptions", mask)
		}
	}
}

func TestCompletedEmptyItemSet(t *testing.T) {
	if Completed(nil) {
		t.Fatal("expedition without items must not complete by consumption")
	}
}

// TestBerryScenario follows the reference flow: one item "Berry", quantity
// 10, grade A, price 5.00. Alice takes 4 fully paid; Bob then asks for 7 with
// only 6 remaining and is rejected without touching stock.
func TestBerryScenario(t *testing.T) {
	item := berryItem(10, 500)

	aliceCost := Cost(4, item.UnitPriceCents)
	if aliceCost != 2000 {
		t.Fatalf("expected alice to owe 2000 cents, got %d", aliceCost)
	}
	if err := Reserve(&item, 4); err != nil {
		t.Fatalf("alice reserve: %v", err)
	}
	status, err := ClassifyPayment(2000, aliceCost)
	if err != nil {
		t.Fatalf("alice payment: %v", err)
	}
	if status != model.PaymentPaid {
		t.Fatalf("alice should be paid, got %s", status)
	}
	if item.Remaining() != 6 {
		t.Fatalf("expected 6 remaining after alice, got %d", item.Remaining())
	}

	if err := Reserve(&item, 7); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("bob should hit ErrInsufficientStock, got %v", err)
	}
	if item.Remaining() != 6 {
		t.Fatalf("stock must stay 6 after bob's rejection, got %d", item.Remaining())
	}
}

func TestEffectiveStatus(t *testing.T) {
	event := &model.ConsumptionEvent{Quantity: 4, TotalCostCents: 2000, UpfrontPaidCents: 500, PaymentStatus: model.PaymentPartial}

	if got := EffectiveStatus(event, 0); got != model.PaymentPartial {
		t.Fatalf("no adjustments: got %s", got)
	}
	if got := EffectiveStatus(event, 1000); got != model.PaymentPartial {
		t.Fatalf("partial adjustments: got %s", got)
	}
	if got := EffectiveStatus(event, 1500); got != model.PaymentPaid {
		t.Fatalf("settled: got %s", got)
	}

	pending := &model.ConsumptionEvent{Quantity: 1, TotalCostCents: 500, PaymentStatus: model.PaymentPending}
	if got := EffectiveStatus(pending, 0); got != model.PaymentPending {
		t.Fatalf("pending: got %s", got)
	}
}

func TestValidateAdjustment(t *testing.T) {
	event := &model.ConsumptionEvent{Quantity: 4, TotalCostCents: 2000, UpfrontPaidCents: 500}

	if err := ValidateAdjustment(event, 0, 1500); err != nil {
		t.Fatalf("exact settlement: %v", err)
	}
	if err := ValidateAdjustment(event, 1000, 500); err != nil {
		t.Fatalf("remaining settlement: %v", err)
	}
	if err := ValidateAdjustment(event, 0, 0); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("zero amount: expected ErrInvalidPayment, got %v", err)
	}
	if err := ValidateAdjustment(event, 1000, 501); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("over outstanding: expected ErrInvalidPayment, got %v", err)
	}
}

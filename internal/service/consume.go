package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/expedition/internal/brambler"
	"github.com/kkkkikiki/expedition/internal/ledger"
	"github.com/kkkkikiki/expedition/internal/metrics"
	"github.com/kkkkikiki/expedition/internal/model"
	"github.com/kkkkikiki/expedition/internal/repository"
	"github.com/kkkkikiki/expedition/internal/vault"
)

// ConsumeInput describes one consumption request, typically originating from
// the commerce-event collaborator. SaleRef is an opaque link to the external
// sale record and is stored without validation.
type ConsumeInput struct {
	ExpeditionID     int64
	ItemID           int64
	RealIdentifier   string
	Quantity         int64
	UpfrontPaidCents int64
	PaymentTerm      string
	SaleRef          string
}

// ConsumeResult is the outcome of a successful consumption.
type ConsumeResult struct {
	Event     *model.ConsumptionEvent
	Pseudonym string
	Completed bool
}

// Consume records a participant taking stock from a committed item.
// Pseudonym allocation, stock reservation, payment classification, event
// append and completion detection all happen in one transaction holding the
// expedition row lock.
func (s *ExpeditionService) Consume(ctx context.Context, in ConsumeInput) (*ConsumeResult, error) {
	start := time.Now()
	result := "failure"
	defer func() {
		metrics.RecordConsumeDuration(result, time.Since(start).Seconds())
	}()

	if strings.TrimSpace(in.RealIdentifier) == "" {
		return nil, errors.New("real identifier is required")
	}
	if in.Quantity < 1 {
		return nil, model.ErrInvalidEventQuantity
	}

	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	expedition, err := s.expeditionRepo.GetForUpdate(tx, in.ExpeditionID)
	if err != nil {
		return nil, err
	}
	if expedition.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: status %s", ledger.ErrCampaignClosed, expedition.Status)
	}

	item, err := s.itemRepo.Get(tx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if item.ExpeditionID != in.ExpeditionID {
		return nil, fmt.Errorf("%w: item %d does not belong to expedition %d", repository.ErrNotFound, in.ItemID, in.ExpeditionID)
	}

	now := s.now().UTC()
	participant, err := s.resolveParticipant(tx, expedition, in.RealIdentifier, now)
	if err != nil {
		return nil, err
	}

	if err := s.itemRepo.ReserveConsumption(tx, in.ItemID, in.Quantity); err != nil {
		if errors.Is(err, repository.ErrStockExceeded) {
			return nil, fmt.Errorf("%w: %d requested, %d remaining", ledger.ErrInsufficientStock, in.Quantity, item.Remaining())
		}
		return nil, err
	}

	totalCost := ledger.Cost(in.Quantity, item.UnitPriceCents)
	paymentStatus, err := ledger.ClassifyPayment(in.UpfrontPaidCents, totalCost)
	if err != nil {
		return nil, err
	}

	event := &model.ConsumptionEvent{
		ExpeditionID:     in.ExpeditionID,
		ItemID:           in.ItemID,
		ParticipantID:    participant.ID,
		Quantity:         in.Quantity,
		TotalCostCents:   totalCost,
		UpfrontPaidCents: in.UpfrontPaidCents,
		PaymentStatus:    paymentStatus,
		PaymentTerm:      in.PaymentTerm,
		SaleRef:          in.SaleRef,
		CreatedAt:        now,
	}
	if err := s.eventRepo.Insert(tx, event); err != nil {
		return nil, err
	}

	if err := s.expeditionRepo.AddTotalValue(tx, in.ExpeditionID, totalCost, now); err != nil {
		return nil, err
	}

	// Completion check observes the post-reservation snapshot under the same
	// expedition lock.
	items, err := s.itemRepo.ListByExpedition(tx, in.ExpeditionID)
	if err != nil {
		return nil, err
	}
	completed := ledger.Completed(items)
	if completed {
		if err := s.expeditionRepo.UpdateStatus(tx, in.ExpeditionID, model.StatusCompleted, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	result = "success"

	s.invalidateSummary(ctx, in.ExpeditionID)
	return &ConsumeResult{Event: event, Pseudonym: participant.Pseudonym, Completed: completed}, nil
}

// resolveParticipant returns the existing participant for an identifier or
// creates one. The first participant of an expedition stamps items_locked_at,
// freezing the committed item set. Keys are derived inside the call and
// dropped when it returns.
func (s *ExpeditionService) resolveParticipant(tx *sqlx.Tx, expedition *model.Expedition, realIdentifier string, now time.Time) (*model.Participant, error) {
	keys, err := vault.DeriveKeys(s.ownerSecret, expedition.Salt, s.kdfIterations)
	if err != nil {
		return nil, err
	}
	digest := vault.IdentityDigest(keys, realIdentifier)

	existing, err := s.participantRepo.GetByDigest(tx, expedition.ID, digest)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	taken, err := s.participantRepo.ListPseudonyms(tx, expedition.ID)
	if err != nil {
		return nil, err
	}
	takenSet := make(map[string]bool, len(taken))
	for _, name := range taken {
		takenSet[name] = true
	}
	pseudonym := brambler.Pick(digest, takenSet)

	ciphertext, tag, err := vault.EncryptMapping(realIdentifier, keys, expeditionContext(expedition.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to seal identity: %w", err)
	}

	participant := &model.Participant{
		ExpeditionID:       expedition.ID,
		Pseudonym:          pseudonym,
		IdentityCiphertext: ciphertext,
		IdentityTag:        tag,
		IdentityDigest:     digest,
		CreatedAt:          now,
	}
	if err := s.participantRepo.Insert(tx, participant); err != nil {
		return nil, err
	}

	// A participant now exists: the committed item set is frozen from here on.
	if err := s.expeditionRepo.MarkItemsLocked(tx, expedition.ID, now); err != nil {
		return nil, err
	}

	return participant, nil
}

// RecordPayment appends a payment adjustment against an existing consumption
// event. History is never rewritten; the effective payment status is derived
// from upfront plus adjustments. Settling debts remains possible on completed
// expeditions but not on cancelled ones.
func (s *ExpeditionService) RecordPayment(ctx context.Context, eventID, amountCents int64) (*model.PaymentAdjustment, error) {
	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	event, err := s.eventRepo.Get(tx, eventID)
	if err != nil {
		return nil, err
	}

	expedition, err := s.expeditionRepo.GetForUpdate(tx, event.ExpeditionID)
	if err != nil {
		return nil, err
	}
	if expedition.Status == model.StatusCancelled {
		return nil, fmt.Errorf("%w: status %s", ledger.ErrCampaignClosed, expedition.Status)
	}

	adjusted, err := s.eventRepo.SumAdjustments(tx, eventID)
	if err != nil {
		return nil, err
	}
	if err := ledger.ValidateAdjustment(event, adjusted, amountCents); err != nil {
		return nil, err
	}

	adjustment := &model.PaymentAdjustment{
		EventID:     eventID,
		AmountCents: amountCents,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.eventRepo.InsertAdjustment(tx, adjustment); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateSummary(ctx, event.ExpeditionID)
	return adjustment, nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kkkkikiki/expedition/internal/ledger"
	"github.com/kkkkikiki/expedition/internal/metrics"
	"github.com/kkkkikiki/expedition/internal/model"
	"github.com/kkkkikiki/expedition/internal/vault"
)

// ItemSummary is the per-item slice of an expedition summary.
type ItemSummary struct {
	ItemID         int64       `json:"item_id"`
	Product        string      `json:"product"`
	Grade          model.Grade `json:"grade"`
	UnitPriceCents int64       `json:"unit_price_cents"`
	Committed      int64       `json:"committed"`
	Consumed       int64       `json:"consumed"`
	Remaining      int64       `json:"remaining"`
}

// Summary aggregates one expedition for the dashboard surface.
type Summary struct {
	ExpeditionID     int64         `json:"expedition_id"`
	Name             string        `json:"name"`
	Status           model.Status  `json:"status"`
	Overdue          bool          `json:"overdue"`
	Deadline         time.Time     `json:"deadline"`
	ItemsLocked      bool          `json:"items_locked"`
	Participants     int64         `json:"participants"`
	TotalValueCents  int64         `json:"total_value_cents"`
	OutstandingCents int64         `json:"outstanding_cents"`
	TotalCommitted   int64         `json:"total_committed"`
	TotalConsumed    int64         `json:"total_consumed"`
	ConsumptionPct   float64       `json:"consumption_pct"`
	Items            []ItemSummary `json:"items"`
}

// GetSummary returns aggregated totals, consumption percentage and per-item
// remaining stock for one expedition. Results are cached briefly; any cache
// trouble falls through to the database.
func (s *ExpeditionService) GetSummary(ctx context.Context, expeditionID int64) (*Summary, error) {
	if payload, ok, err := s.summaryCache.GetSummary(ctx, expeditionID); err != nil {
		log.Printf("Summary cache read failed for expedition %d: %v", expeditionID, err)
	} else if ok {
		var summary Summary
		if err := json.Unmarshal(payload, &summary); err == nil {
			return &summary, nil
		}
		log.Printf("Discarding undecodable cached summary for expedition %d", expeditionID)
	}

	expedition, err := s.expeditionRepo.Get(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}
	items, err := s.itemRepo.ListByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.CountByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.eventRepo.SumAdjustmentsByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ExpeditionID:    expedition.ID,
		Name:            expedition.Name,
		Status:          expedition.Status,
		Overdue:         expedition.Overdue(s.now()),
		Deadline:        expedition.Deadline,
		ItemsLocked:     expedition.ItemsLockedAt != nil,
		Participants:    participants,
		TotalValueCents: expedition.TotalValueCents,
		Items:           make([]ItemSummary, 0, len(items)),
	}
	for idx := range items {
		item := &items[idx]
		summary.TotalCommitted += item.QuantityCommitted
		summary.TotalConsumed += item.QuantityConsumed
		summary.Items = append(summary.Items, ItemSummary{
			ItemID:         item.ID,
			Product:        item.Product,
			Grade:          item.Grade,
			UnitPriceCents: item.UnitPriceCents,
			Committed:      item.QuantityCommitted,
			Consumed:       item.QuantityConsumed,
			Remaining:      item.Remaining(),
		})
	}
	if summary.TotalCommitted > 0 {
		summary.ConsumptionPct = float64(summary.TotalConsumed) / float64(summary.TotalCommitted) * 100
	}
	for idx := range events {
		event := &events[idx]
		summary.OutstandingCents += event.TotalCostCents - event.UpfrontPaidCents - adjustments[event.ID]
	}

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.summaryCache.SetSummary(ctx, expeditionID, payload); err != nil {
			log.Printf("Summary cache write failed for expedition %d: %v", expeditionID, err)
		}
	}

	return summary, nil
}

// ListOverdueExpeditions returns active expeditions past their deadline. The
// predicate is derived; no status changes happen here.
func (s *ExpeditionService) ListOverdueExpeditions(ctx context.Context) ([]model.Expedition, error) {
	return s.expeditionRepo.ListOverdue(s.postgres, s.now().UTC())
}

// EventView is a consumption event with its derived payment state.
type EventView struct {
	Event           model.ConsumptionEvent `json:"event"`
	PaidCents       int64                  `json:"paid_cents"`
	EffectiveStatus model.PaymentStatus    `json:"effective_status"`
}

// ListEvents returns the consumption ledger of one expedition with the
// payment status derived from upfront amounts plus appended adjustments.
func (s *ExpeditionService) ListEvents(ctx context.Context, expeditionID int64) ([]EventView, error) {
	if _, err := s.expeditionRepo.Get(s.postgres, expeditionID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.eventRepo.SumAdjustmentsByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}

	views := make([]EventView, 0, len(events))
	for idx := range events {
		event := events[idx]
		adjusted := adjustments[event.ID]
		views = append(views, EventView{
			Event:           event,
			PaidCents:       event.UpfrontPaidCents + adjusted,
			EffectiveStatus: ledger.EffectiveStatus(&event, adjusted),
		})
	}

	return views, nil
}

// ParticipantView is one participant as exposed to the owner-facing surface.
// RealIdentifier is only set when reveal succeeded for that entry.
type ParticipantView struct {
	Pseudonym        string    `json:"pseudonym"`
	JoinedAt         time.Time `json:"joined_at"`
	RealIdentifier   string    `json:"real_identifier,omitempty"`
	IntegrityFailure bool      `json:"integrity_failure,omitempty"`
}

// ListParticipants returns pseudonyms for one expedition. With reveal set,
// the supplied owner secret is used to decrypt each real identifier; entries
// whose seal does not verify report an integrity failure instead of leaking
// partial data. A wrong secret therefore fails every entry deterministically.
func (s *ExpeditionService) ListParticipants(ctx context.Context, expeditionID int64, reveal bool, ownerSecret string) ([]ParticipantView, error) {
	expedition, err := s.expeditionRepo.Get(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.ListByExpedition(s.postgres, expeditionID)
	if err != nil {
		return nil, err
	}

	views := make([]ParticipantView, 0, len(participants))
	if !reveal {
		for idx := range participants {
			views = append(views, ParticipantView{
				Pseudonym: participants[idx].Pseudonym,
				JoinedAt:  participants[idx].CreatedAt,
			})
		}
		return views, nil
	}

	keys, err := vault.DeriveKeys(ownerSecret, expedition.Salt, s.kdfIterations)
	if err != nil {
		return nil, err
	}
	sealContext := expeditionContext(expeditionID)

	for idx := range participants {
		p := &participants[idx]
		view := ParticipantView{Pseudonym: p.Pseudonym, JoinedAt: p.CreatedAt}

		identifier, err := vault.DecryptMapping(p.IdentityCiphertext, p.IdentityTag, keys, sealContext)
		switch {
		case err == nil:
			view.RealIdentifier = identifier
		case errors.Is(err, vault.ErrIntegrity):
			// Security event: tampered, mis-keyed or cross-expedition
			// ciphertext. Counted and logged apart from not-found noise.
			metrics.IntegrityFailures.Inc()
			log.Printf("SECURITY integrity failure revealing participant %d of expedition %d", p.ID, expeditionID)
			view.IntegrityFailure = true
		default:
			return nil, fmt.Errorf("failed to reveal participant %d: %w", p.ID, err)
		}

		views = append(views, view)
	}

	return views, nil
}

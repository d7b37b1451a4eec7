package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/expedition/internal/cache"
	"github.com/kkkkikiki/expedition/internal/config"
	"github.com/kkkkikiki/expedition/internal/ledger"
	"github.com/kkkkikiki/expedition/internal/model"
	"github.com/kkkkikiki/expedition/internal/repository"
	"github.com/kkkkikiki/expedition/internal/vault"
)

// ExpeditionService orchestrates the expedition lifecycle over the
// repositories. Every mutating method runs in one transaction that locks the
// expedition row first, so all mutation of a single expedition is serialized
// while separate expeditions proceed in parallel.
type ExpeditionService struct {
	postgres        *sqlx.DB
	expeditionRepo  *repository.ExpeditionRepository
	itemRepo        *repository.ItemRepository
	participantRepo *repository.ParticipantRepository
	eventRepo       *repository.EventRepository
	summaryCache    *cache.SummaryCache

	ownerSecret   string
	kdfIterations int
	now           func() time.Time
}

// NewExpeditionService creates a new ExpeditionService instance
func NewExpeditionService(postgres *sqlx.DB, summaryCache *cache.SummaryCache, brambler config.BramblerConfig) *ExpeditionService {
	return &ExpeditionService{
		postgres:        postgres,
		expeditionRepo:  repository.NewExpeditionRepository(),
		itemRepo:        repository.NewItemRepository(),
		participantRepo: repository.NewParticipantRepository(),
		eventRepo:       repository.NewEventRepository(),
		summaryCache:    summaryCache,
		ownerSecret:     brambler.OwnerSecret,
		kdfIterations:   brambler.KDFIterations,
		now:             time.Now,
	}
}

// expeditionContext is the associated context that binds sealed identities to
// their expedition, so ciphertext copied across expeditions fails integrity.
func expeditionContext(expeditionID int64) string {
	return fmt.Sprintf("expedition:%d", expeditionID)
}

// CreateExpedition creates a new expedition with a fresh key derivation salt.
func (s *ExpeditionService) CreateExpedition(ctx context.Context, name, ownerID string, deadline time.Time) (*model.Expedition, error) {
	salt, err := vault.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate expedition salt: %w", err)
	}

	expedition, err := model.NewExpedition(name, ownerID, deadline, salt, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.expeditionRepo.Create(s.postgres, expedition); err != nil {
		return nil, err
	}

	return expedition, nil
}

// GetExpedition retrieves one expedition.
func (s *ExpeditionService) GetExpedition(ctx context.Context, id int64) (*model.Expedition, error) {
	return s.expeditionRepo.Get(s.postgres, id)
}

// ItemInput describes one item to commit to an expedition.
type ItemInput struct {
	Product        string
	Grade          model.Grade
	Quantity       int64
	UnitPriceCents int64
}

// CommitItems adds committed items to an expedition during the pre-lock
// phase. Once any participant exists the item set is frozen and this fails
// with ErrItemsLocked.
func (s *ExpeditionService) CommitItems(ctx context.Context, expeditionID int64, inputs []ItemInput) ([]model.CommittedItem, error) {
	items := make([]model.CommittedItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, model.CommittedItem{
			ExpeditionID:      expeditionID,
			Product:           in.Product,
			Grade:             in.Grade,
			QuantityCommitted: in.Quantity,
			UnitPriceCents:    in.UnitPriceCents,
		})
	}
	if err := ledger.ValidateNewItems(items); err != nil {
		return nil, err
	}

	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	expedition, err := s.expeditionRepo.GetForUpdate(tx, expeditionID)
	if err != nil {
		return nil, err
	}
	if expedition.Status.Terminal() {
		return nil, fmt.Errorf("%w: status %s", ledger.ErrCampaignClosed, expedition.Status)
	}

	// The lock timestamp is stamped when the first participant is created,
	// but the participant count is what the rule is defined over, so the gate
	// checks both.
	count, err := s.participantRepo.CountByExpedition(tx, expeditionID)
	if err != nil {
		return nil, err
	}
	if err := ledger.EnsureItemsUnlocked(expedition.ItemsLockedAt, count); err != nil {
		return nil, err
	}

	inserted, err := s.itemRepo.InsertItems(tx, expeditionID, items, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateSummary(ctx, expeditionID)
	return inserted, nil
}

// CompleteExpedition marks an active expedition completed on owner request.
func (s *ExpeditionService) CompleteExpedition(ctx context.Context, id int64) (*model.Expedition, error) {
	return s.transition(ctx, id, model.StatusCompleted)
}

// CancelExpedition marks an active expedition cancelled. Consumption events
// already recorded are retained as the audit ledger.
func (s *ExpeditionService) CancelExpedition(ctx context.Context, id int64) (*model.Expedition, error) {
	return s.transition(ctx, id, model.StatusCancelled)
}

func (s *ExpeditionService) transition(ctx context.Context, id int64, next model.Status) (*model.Expedition, error) {
	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	expedition, err := s.expeditionRepo.GetForUpdate(tx, id)
	if err != nil {
		return nil, err
	}
	if !expedition.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: cannot move %s expedition to %s", ledger.ErrCampaignClosed, expedition.Status, next)
	}

	now := s.now().UTC()
	if err := s.expeditionRepo.UpdateStatus(tx, id, next, now); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: status changed concurrently", ledger.ErrCampaignClosed)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	expedition.Status = next
	expedition.UpdatedAt = now
	s.invalidateSummary(ctx, id)
	return expedition, nil
}

// DeleteExpedition removes an expedition and, by cascade, its items,
// participants and events.
func (s *ExpeditionService) DeleteExpedition(ctx context.Context, id int64) error {
	if err := s.expeditionRepo.Delete(s.postgres, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx, id)
	return nil
}

func (s *ExpeditionService) invalidateSummary(ctx context.Context, expeditionID int64) {
	if err := s.summaryCache.Invalidate(ctx, expeditionID); err != nil {
		log.Printf("Failed to invalidate summary cache for expedition %d: %v", expeditionID, err)
	}
}

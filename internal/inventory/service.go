package inventory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, itemID int64) (Balance, error)
	GetStockCard(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates direct inventory operations: opening stock and
// manual adjustments. Receiving against purchase orders goes through
// the purchasing workflow, which drives the same Blend arithmetic and
// movement rows inside its own transaction.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, allowNeg: cfg.AllowNegativeStock}
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ItemID   int64
	Qty      float64
	UnitCost float64
	Note     string
	ActorID  int64
}

// PostAdjustment posts a positive or negative correction through the
// cost engine. This is the only correction path: movements are never
// edited or deleted.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.ItemID == 0 {
		return Movement{}, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	if math.Abs(input.Qty) < 1e-9 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.Qty > 0 && input.UnitCost < 0 {
		return Movement{}, ErrInvalidUnitCost
	}
	now := time.Now().UTC()
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.ItemID)
		if err != nil {
			if err != ErrBalanceNotFound {
				return err
			}
			balance = Balance{ItemID: input.ItemID}
		}
		unitCost := input.UnitCost
		if input.Qty < 0 {
			unitCost = balance.AvgCost
		}
		next := Blend(balance, input.Qty, unitCost)
		if !s.allowNeg && next.Qty < -0.0001 {
			return ErrNegativeStock
		}
		if err := tx.UpsertBalance(ctx, next); err != nil {
			return err
		}
		movement = Movement{
			ItemID:      input.ItemID,
			Type:        MovementTypeAdjust,
			RefModule:   "INVENTORY",
			QtyIn:       math.Max(input.Qty, 0),
			QtyOut:      math.Max(-input.Qty, 0),
			BalanceQty:  next.Qty,
			UnitCost:    unitCost,
			BalanceCost: next.AvgCost,
			Note:        input.Note,
			PostedAt:    now,
			CreatedBy:   input.ActorID,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory.adjust",
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"item_id": input.ItemID,
				"qty":     input.Qty,
				"note":    input.Note,
			},
			At: now,
		})
	}
	return movement, nil
}

// GetBalance returns the current stock position of an item.
func (s *Service) GetBalance(ctx context.Context, itemID int64) (Balance, error) {
	if itemID == 0 {
		return Balance{}, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	return s.repo.GetBalance(ctx, itemID)
}

// GetStockCard lists stock card movements for an item.
func (s *Service) GetStockCard(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == 0 {
		return nil, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	return s.repo.GetStockCard(ctx, filter)
}

package units

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mdshared "github.com/ledgerline/ledgerline/internal/masterdata/shared"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Service owns unit-of-measure reference data and the conversion
// resolver purchasing relies on.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Unit, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Unit, error) {
	if id <= 0 {
		return Unit{}, fmt.Errorf("%w: invalid unit id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, unit Unit) (Unit, error) {
	if err := s.validate(unit); err != nil {
		return Unit{}, err
	}
	return s.repo.Create(ctx, unit)
}

func (s *Service) Update(ctx context.Context, id int64, unit Unit) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid unit id", shared.ErrValidation)
	}
	if err := s.validate(unit); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, unit)
}

// SetFactor registers or updates an item's purchasing-unit conversion.
func (s *Service) SetFactor(ctx context.Context, link ItemUnit) error {
	if link.ItemID <= 0 || link.UnitID <= 0 {
		return fmt.Errorf("%w: item and unit required", shared.ErrValidation)
	}
	if link.Factor <= 0 {
		return fmt.Errorf("%w: factor must be positive", shared.ErrValidation)
	}
	return s.repo.SetFactor(ctx, link)
}

// Resolve returns the factor converting one purchasing unit of the
// item into base units. A nil unit or a missing link resolves to 1.00
// so the caller can always multiply. The resolved factor is meant to
// be snapshotted into the document line: later edits to the link must
// not change historical documents.
func (s *Service) Resolve(ctx context.Context, itemID int64, unitID *int64) (float64, error) {
	if unitID == nil || *unitID == 0 {
		return 1.00, nil
	}
	factor, err := s.repo.GetFactor(ctx, itemID, *unitID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Debug("no conversion link, defaulting to 1.00",
				slog.Int64("item_id", itemID), slog.Int64("unit_id", *unitID))
			return 1.00, nil
		}
		return 0, err
	}
	if factor <= 0 {
		return 1.00, nil
	}
	return factor, nil
}

func (s *Service) validate(u Unit) error {
	if strings.TrimSpace(u.Code) == "" {
		return fmt.Errorf("%w: unit code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: unit name is required", shared.ErrValidation)
	}
	return nil
}

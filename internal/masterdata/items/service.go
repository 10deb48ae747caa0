package items

import (
	"context"
	"fmt"
	"strings"

	mdshared "github.com/ledgerline/ledgerline/internal/masterdata/shared"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Item, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: invalid item id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// GetMany loads a set of items keyed by id. Missing ids are simply
// absent from the result.
func (s *Service) GetMany(ctx context.Context, ids []int64) (map[int64]Item, error) {
	if len(ids) == 0 {
		return map[int64]Item{}, nil
	}
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) Create(ctx context.Context, item Item) (Item, error) {
	if err := s.validate(item); err != nil {
		return Item{}, err
	}
	if item.Kind == "" {
		item.Kind = KindStocked
	}
	return s.repo.Create(ctx, item)
}

func (s *Service) Update(ctx context.Context, id int64, item Item) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid item id", shared.ErrValidation)
	}
	if err := s.validate(item); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, item)
}

func (s *Service) validate(item Item) error {
	if strings.TrimSpace(item.SKU) == "" {
		return fmt.Errorf("%w: sku is required", shared.ErrValidation)
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if item.Kind != "" && !item.Kind.Valid() {
		return fmt.Errorf("%w: unknown item kind %q", shared.ErrValidation, item.Kind)
	}
	if item.BaseUnitID <= 0 {
		return fmt.Errorf("%w: base unit is required", shared.ErrValidation)
	}
	return nil
}

package taxes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Tax, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Tax, error) {
	if id <= 0 {
		return Tax{}, fmt.Errorf("%w: invalid tax id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// RateFor resolves an item's tax rate percentage. A nil tax reference
// means the item is untaxed.
func (s *Service) RateFor(ctx context.Context, taxID *int64) (float64, error) {
	if taxID == nil || *taxID == 0 {
		return 0, nil
	}
	tax, err := s.repo.Get(ctx, *taxID)
	if err != nil {
		return 0, err
	}
	return tax.Rate, nil
}

// RatesFor resolves rates for a set of tax ids in one read.
func (s *Service) RatesFor(ctx context.Context, ids []int64) (map[int64]float64, error) {
	if len(ids) == 0 {
		return map[int64]float64{}, nil
	}
	taxes, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	rates := make(map[int64]float64, len(taxes))
	for id, tax := range taxes {
		rates[id] = tax.Rate
	}
	return rates, nil
}

func (s *Service) Create(ctx context.Context, tax Tax) (Tax, error) {
	if err := s.validate(tax); err != nil {
		return Tax{}, err
	}
	return s.repo.Create(ctx, tax)
}

func (s *Service) Update(ctx context.Context, id int64, tax Tax) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid tax id", shared.ErrValidation)
	}
	if err := s.validate(tax); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, tax)
}

func (s *Service) validate(tax Tax) error {
	if strings.TrimSpace(tax.Code) == "" {
		return fmt.Errorf("%w: tax code is required", shared.ErrValidation)
	}
	if tax.Rate < 0 || tax.Rate > 100 {
		return fmt.Errorf("%w: rate must be between 0 and 100", shared.ErrValidation)
	}
	return nil
}

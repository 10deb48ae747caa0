package banks

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

func (s *Service) List(ctx context.Context) ([]BankAccount, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (BankAccount, error) {
	if id <= 0 {
		return BankAccount{}, fmt.Errorf("%w: invalid bank account id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, account BankAccount) (BankAccount, error) {
	if err := s.validate(account); err != nil {
		return BankAccount{}, err
	}
	return s.repo.Create(ctx, account)
}

func (s *Service) Update(ctx context.Context, id int64, account BankAccount) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid bank account id", shared.ErrValidation)
	}
	if err := s.validate(account); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, account)
}

func (s *Service) validate(account BankAccount) error {
	if strings.TrimSpace(account.Code) == "" {
		return fmt.Errorf("%w: bank account code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(account.Name) == "" {
		return fmt.Errorf("%w: bank account name is required", shared.ErrValidation)
	}
	if account.LedgerAccountID <= 0 {
		return fmt.Errorf("%w: ledger account link is required", shared.ErrValidation)
	}
	return nil
}

package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryRepo struct {
	balances  map[int64]Balance
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: map[int64]Balance{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetBalance(_ context.Context, itemID int64) (Balance, error) {
	bal, ok := m.balances[itemID]
	if !ok {
		return Balance{ItemID: itemID}, ErrBalanceNotFound
	}
	return bal, nil
}

func (m *memoryRepo) GetStockCard(_ context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, mv := range m.movements {
		if mv.ItemID == filter.ItemID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetBalanceForUpdate(ctx context.Context, itemID int64) (Balance, error) {
	return m.GetBalance(ctx, itemID)
}

func (m *memoryRepo) UpsertBalance(_ context.Context, balance Balance) error {
	m.balances[balance.ItemID] = balance
	return nil
}

func (m *memoryRepo) InsertMovement(_ context.Context, movement Movement) (int64, error) {
	m.nextID++
	movement.ID = m.nextID
	m.movements = append(m.movements, movement)
	return movement.ID, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestPostAdjustmentCreatesBalance(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, ServiceConfig{})

	mv, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID: 7, Qty: 100, UnitCost: 2.00, Note: "opening stock", ActorID: 1,
	})
	require.NoError(t, err)
	require.InDelta(t, 100.0, mv.BalanceQty, 1e-9)
	require.InDelta(t, 2.00, mv.BalanceCost, 1e-9)
	require.Equal(t, MovementTypeAdjust, mv.Type)

	bal, err := svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	require.InDelta(t, 100.0, bal.Qty, 1e-9)
	require.InDelta(t, 2.00, bal.AvgCost, 1e-9)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "inventory.adjust", audit.logs[0].Action)
	require.False(t, audit.logs[0].At.IsZero())
}

func TestPostAdjustmentNegativeIssuesAtAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7, Qty: 10, UnitCost: 4.00})
	require.NoError(t, err)

	mv, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7, Qty: -4, UnitCost: 99.99})
	require.NoError(t, err)
	require.InDelta(t, 4.00, mv.UnitCost, 1e-9, "negative adjustments ignore the submitted cost")
	require.InDelta(t, 6.0, mv.BalanceQty, 1e-9)
	require.InDelta(t, 4.0, mv.QtyOut, 1e-9)
	require.Zero(t, mv.QtyIn)
}

func TestPostAdjustmentRejectsNegativeStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7, Qty: 5, UnitCost: 1.00})
	require.NoError(t, err)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7, Qty: -6})
	require.ErrorIs(t, err, ErrNegativeStock)

	bal, err := svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	require.InDelta(t, 5.0, bal.Qty, 1e-9)
}

func TestPostAdjustmentAllowsNegativeWhenConfigured(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, ServiceConfig{AllowNegativeStock: true})

	mv, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7, Qty: -3})
	require.NoError(t, err)
	require.InDelta(t, -3.0, mv.BalanceQty, 1e-9)
	require.Zero(t, mv.BalanceCost)
}

func TestPostAdjustmentValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, ServiceConfig{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{Qty: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 7, Qty: 1, UnitCost: -2})
	require.ErrorIs(t, err, ErrInvalidUnitCost)
}

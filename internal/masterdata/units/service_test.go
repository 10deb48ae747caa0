package units

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	mdshared "github.com/ledgerline/ledgerline/internal/masterdata/shared"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryRepo struct {
	units   map[int64]Unit
	factors map[[2]int64]float64
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{units: map[int64]Unit{}, factors: map[[2]int64]float64{}}
}

func (m *memoryRepo) List(_ context.Context, _ mdshared.ListFilters) ([]Unit, int, error) {
	var out []Unit
	for _, u := range m.units {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Unit, error) {
	u, ok := m.units[id]
	if !ok {
		return Unit{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) Create(_ context.Context, unit Unit) (Unit, error) {
	m.nextID++
	unit.ID = m.nextID
	m.units[unit.ID] = unit
	return unit, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, unit Unit) error {
	if _, ok := m.units[id]; !ok {
		return shared.ErrNotFound
	}
	unit.ID = id
	m.units[id] = unit
	return nil
}

func (m *memoryRepo) GetFactor(_ context.Context, itemID, unitID int64) (float64, error) {
	f, ok := m.factors[[2]int64{itemID, unitID}]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return f, nil
}

func (m *memoryRepo) SetFactor(_ context.Context, link ItemUnit) error {
	m.factors[[2]int64{link.ItemID, link.UnitID}] = link.Factor
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, slog.Default())
}

func TestResolveDefaultsToOne(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	factor, err := svc.Resolve(context.Background(), 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 1.00, factor, 1e-9)

	unitID := int64(9)
	factor, err = svc.Resolve(context.Background(), 1, &unitID)
	require.NoError(t, err)
	require.InDelta(t, 1.00, factor, 1e-9, "missing link falls back to 1.00")
}

func TestResolveReturnsLinkedFactor(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	require.NoError(t, svc.SetFactor(context.Background(), ItemUnit{ItemID: 1, UnitID: 9, Factor: 12}))

	unitID := int64(9)
	factor, err := svc.Resolve(context.Background(), 1, &unitID)
	require.NoError(t, err)
	require.InDelta(t, 12.0, factor, 1e-9)
}

func TestSetFactorRejectsNonPositive(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	err := svc.SetFactor(context.Background(), ItemUnit{ItemID: 1, UnitID: 9, Factor: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateValidatesCodeAndName(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Create(context.Background(), Unit{Name: "Box"})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(context.Background(), Unit{Code: "BOX", Name: "Box of 12"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

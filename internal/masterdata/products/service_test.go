package products

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian/internal/masterdata/shared"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[int64]Product{}, nextID: 1}
}

func (r *memoryRepo) List(_ context.Context, _ shared.ListFilters) ([]Product, int, error) {
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetBySKU(_ context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) Create(_ context.Context, p Product) (Product, error) {
	p.ID = r.nextID
	r.nextID++
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Update(_ context.Context, id int64, p Product) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	p.ID = id
	r.products[id] = p
	return nil
}

func (r *memoryRepo) Deactivate(_ context.Context, id int64) error {
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsActive = false
	r.products[id] = p
	return nil
}

func (r *memoryRepo) Exists(_ context.Context, id int64) (bool, error) {
	p, ok := r.products[id]
	return ok && p.IsActive, nil
}

func sample() Product {
	return Product{
		SKU:      "WIDGET-1",
		Name:     "Widget",
		UOM:      "EA",
		UnitCost: decimal.RequireFromString("12.50"),
		WeightKg: 0.75,
		IsActive: true,
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Name: "no sku", UOM: "EA"})
	require.Error(t, err)

	_, err = svc.Create(ctx, Product{SKU: "X", UOM: "EA"})
	require.Error(t, err)

	bad := sample()
	bad.WeightKg = -1
	_, err = svc.Create(ctx, bad)
	require.Error(t, err)

	created, err := svc.Create(ctx, sample())
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
}

func TestProductExistsTracksActiveFlag(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, sample())
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Deactivate(ctx, created.ID))
	ok, err = svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Exists(ctx, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProductWeight(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, sample())
	require.NoError(t, err)

	weight, err := svc.Weight(ctx, created.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.75, weight, 0.0001)

	_, err = svc.Weight(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

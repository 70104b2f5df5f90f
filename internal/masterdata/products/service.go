package products

import (
	"context"

	"github.com/meridian-wms/meridian/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (Product, error) {
	return s.repo.GetBySKU(ctx, sku)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, id)
}

// Exists reports whether an active product with the id is on record.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.Exists(ctx, id)
}

// Weight returns the shipping weight in kilograms for one unit.
func (s *Service) Weight(ctx context.Context, id int64) (float64, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return product.WeightKg, nil
}

package locations

import (
	"context"
	"errors"
	"strings"

	"github.com/meridian-wms/meridian/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]BinLocation, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (BinLocation, error) {
	if id <= 0 {
		return BinLocation{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, location BinLocation) (BinLocation, error) {
	if err := s.validate(location); err != nil {
		return BinLocation{}, err
	}
	return s.repo.Create(ctx, location)
}

func (s *Service) Update(ctx context.Context, id int64, location BinLocation) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(location); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, location)
}

func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, id)
}

// Exists reports whether an active location with the id is on record.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.Exists(ctx, id)
}

func (s *Service) validate(l BinLocation) error {
	if strings.TrimSpace(l.Code) == "" {
		return errors.New("location code is required")
	}
	if strings.TrimSpace(l.Zone) == "" {
		return errors.New("location zone is required")
	}
	return nil
}

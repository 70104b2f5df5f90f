package products

import (
	"errors"
	"strings"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return errors.New("product sku is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if strings.TrimSpace(p.UOM) == "" {
		return errors.New("product uom is required")
	}
	if p.WeightKg < 0 {
		return errors.New("product weight cannot be negative")
	}
	if p.ReorderPoint < 0 {
		return errors.New("product reorder point cannot be negative")
	}
	return nil
}

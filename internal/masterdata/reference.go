// Package masterdata holds the catalog the rest of the system references:
// products and bin locations.
package masterdata

import (
	"context"

	"github.com/meridian-wms/meridian/internal/masterdata/locations"
	"github.com/meridian-wms/meridian/internal/masterdata/products"
)

// Reference bundles product and location lookups behind a single adapter.
// The ledger uses it to verify references before posting; fulfilment uses
// it for shipping weights.
type Reference struct {
	products  *products.Service
	locations *locations.Service
}

func NewReference(products *products.Service, locations *locations.Service) *Reference {
	return &Reference{products: products, locations: locations}
}

func (r *Reference) ProductExists(ctx context.Context, id int64) (bool, error) {
	return r.products.Exists(ctx, id)
}

func (r *Reference) LocationExists(ctx context.Context, id int64) (bool, error) {
	return r.locations.Exists(ctx, id)
}

func (r *Reference) ProductWeight(ctx context.Context, id int64) (float64, error) {
	return r.products.Weight(ctx, id)
}

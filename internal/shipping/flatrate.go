package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FlatRateProvider is the in-house reference carrier: a base fee plus a
// per-kilogram charge. It is good enough for development and for sites that
// ship with their own fleet.
type FlatRateProvider struct {
	carrier   string
	baseFee   decimal.Decimal
	perKgFee  decimal.Decimal
	currency  string
	clock     func() time.Time
	tracking  func() string
}

// FlatRateConfig groups optional provider settings.
type FlatRateConfig struct {
	Carrier  string
	BaseFee  decimal.Decimal
	PerKgFee decimal.Decimal
	Currency string
	Clock    func() time.Time
}

// NewFlatRateProvider builds the reference provider. Zero fees are allowed.
func NewFlatRateProvider(cfg FlatRateConfig) *FlatRateProvider {
	carrier := cfg.Carrier
	if carrier == "" {
		carrier = "FLATRATE"
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &FlatRateProvider{
		carrier:  carrier,
		baseFee:  cfg.BaseFee,
		perKgFee: cfg.PerKgFee,
		currency: currency,
		clock:    clock,
		tracking: func() string { return fmt.Sprintf("FR-%s", uuid.NewString()[:18]) },
	}
}

func (p *FlatRateProvider) Name() string { return p.carrier }

func (p *FlatRateProvider) Quote(ctx context.Context, shipment Shipment) (RateQuote, error) {
	if shipment.WeightKg < 0 {
		return RateQuote{}, ErrInvalidShipment
	}
	now := p.clock()
	cost := p.baseFee.Add(p.perKgFee.Mul(decimal.NewFromFloat(shipment.WeightKg)))
	return RateQuote{
		Carrier:      p.carrier,
		Service:      "standard",
		Cost:         cost,
		Currency:     p.currency,
		TransitDays:  3,
		QuotedAt:     now,
		ValidUntilAt: now.Add(24 * time.Hour),
	}, nil
}

func (p *FlatRateProvider) CreateLabel(ctx context.Context, shipment Shipment) (Label, error) {
	quote, err := p.Quote(ctx, shipment)
	if err != nil {
		return Label{}, err
	}
	return Label{
		Carrier:        p.carrier,
		TrackingNumber: p.tracking(),
		Cost:           quote.Cost,
		CreatedAt:      p.clock(),
	}, nil
}

// Package shipping defines the carrier boundary. Carrier integrations live
// behind the Provider interface; the rest of the system only ever sees rate
// quotes and labels.
package shipping

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Shipment describes one outbound parcel to be quoted or labelled.
type Shipment struct {
	OrderID     int64
	WeightKg    float64
	Destination string
	Service     string
}

// RateQuote is a carrier price for a shipment.
type RateQuote struct {
	Carrier      string
	Service      string
	Cost         decimal.Decimal
	Currency     string
	TransitDays  int
	QuotedAt     time.Time
	ValidUntilAt time.Time
}

// Label is a purchased shipping label.
type Label struct {
	Carrier        string
	TrackingNumber string
	Cost           decimal.Decimal
	LabelURL       string
	CreatedAt      time.Time
}

// Provider is the carrier port.
type Provider interface {
	Name() string
	Quote(ctx context.Context, shipment Shipment) (RateQuote, error)
	CreateLabel(ctx context.Context, shipment Shipment) (Label, error)
}

// ErrInvalidShipment indicates a shipment missing the data a carrier needs.
var ErrInvalidShipment = errors.New("shipping: invalid shipment")

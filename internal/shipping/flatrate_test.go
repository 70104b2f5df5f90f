package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFlatRateQuote(t *testing.T) {
	p := NewFlatRateProvider(FlatRateConfig{
		BaseFee:  decimal.RequireFromString("5.00"),
		PerKgFee: decimal.RequireFromString("1.25"),
		Clock:    func() time.Time { return time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC) },
	})

	quote, err := p.Quote(context.Background(), Shipment{OrderID: 1, WeightKg: 4})
	require.NoError(t, err)
	require.True(t, quote.Cost.Equal(decimal.RequireFromString("10.00")), "cost %s", quote.Cost)
	require.Equal(t, "FLATRATE", quote.Carrier)
	require.Equal(t, "USD", quote.Currency)
}

func TestFlatRateRejectsNegativeWeight(t *testing.T) {
	p := NewFlatRateProvider(FlatRateConfig{})
	_, err := p.Quote(context.Background(), Shipment{WeightKg: -1})
	require.ErrorIs(t, err, ErrInvalidShipment)
}

func TestFlatRateLabelCarriesQuoteCost(t *testing.T) {
	p := NewFlatRateProvider(FlatRateConfig{BaseFee: decimal.RequireFromString("7.50")})
	label, err := p.CreateLabel(context.Background(), Shipment{OrderID: 9, WeightKg: 0})
	require.NoError(t, err)
	require.NotEmpty(t, label.TrackingNumber)
	require.True(t, label.Cost.Equal(decimal.RequireFromString("7.50")))
}

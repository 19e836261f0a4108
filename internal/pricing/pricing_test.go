package pricing

import (
	"context"
	"testing"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.PricingConfig {
	return config.PricingConfig{
		VATRate: 0.07,
		DeliveryTiers: []config.DeliveryTier{
			{MaxKm: 3, Fee: 30},
			{MaxKm: 6, Fee: 60},
			{MaxKm: 10, Fee: 80},
			{MaxKm: 0, Fee: 100},
		},
		BaseCookMinutes:     10,
		DefaultCookMinutes:  12,
		PerExtraQtyMinutes:  2,
		PerExtraLineMinutes: 1,
		CategoryCookMinutes: map[string]int{"noodle": 12, "curry": 15, "drink": 2},
		AvgSpeedKmh:         25,
		MinTravelMinutes:    10,
	}
}

type fixedTravel struct {
	mins int
	ok   bool
}

func (f fixedTravel) TravelMinutes(ctx context.Context, distanceKm float64) (int, bool) {
	return f.mins, f.ok
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestQuoteEndToEnd(t *testing.T) {
	e := NewEngine(testConfig(), nil)

	q := e.Quote(context.Background(), Input{
		Items: []Item{
			{Name: "Pad Thai", Category: "noodle", UnitPrice: 275, Quantity: 2},
		},
		DistanceKm:   4,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	})

	assert.Equal(t, int64(550), q.Subtotal)
	assert.Equal(t, int64(60), q.DeliveryFee, "4km falls in the 3-6km tier")
	assert.Equal(t, int64(43), q.Tax, "round(610 * 0.07)")
	assert.Equal(t, int64(0), q.Discount)
	assert.Equal(t, int64(653), q.Total)
	assert.Equal(t, q.Total, q.Subtotal+q.DeliveryFee+q.Tax-q.Discount)
	require.NotNil(t, q.ExpectedDeliveryAt)
}

func TestQuoteIsDeterministic(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	in := Input{
		Items:        []Item{{Name: "Green Curry", Category: "curry", UnitPrice: 120, Quantity: 1}},
		DistanceKm:   2.5,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	}

	a := e.Quote(context.Background(), in)
	b := e.Quote(context.Background(), in)
	assert.Equal(t, a, b)
}

func TestDeliveryTiers(t *testing.T) {
	e := NewEngine(testConfig(), nil)

	cases := []struct {
		distance float64
		fee      int64
	}{
		{0.5, 30},
		{3, 30},
		{4, 60},
		{6, 60},
		{9.9, 80},
		{15, 100}, // catch-all
	}
	for _, tc := range cases {
		q := e.Quote(context.Background(), Input{
			Items:        []Item{{UnitPrice: 100, Quantity: 1}},
			DistanceKm:   tc.distance,
			DeliveryType: models.DeliveryTypeDelivery,
			Now:          testNow,
		})
		assert.Equal(t, tc.fee, q.DeliveryFee, "distance %.1f", tc.distance)
	}
}

func TestPickupHasNoDeliveryFee(t *testing.T) {
	e := NewEngine(testConfig(), nil)

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{UnitPrice: 100, Quantity: 1}},
		DistanceKm:   42,
		DeliveryType: models.DeliveryTypePickup,
		Now:          testNow,
	})

	assert.Equal(t, int64(0), q.DeliveryFee)
	assert.Nil(t, q.ExpectedDeliveryAt, "pickup orders have no delivery ETA")
}

func TestFreeDeliveryThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.FreeDeliveryThreshold = 500
	e := NewEngine(cfg, nil)

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{UnitPrice: 500, Quantity: 1}},
		DistanceKm:   4,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	})
	assert.Equal(t, int64(0), q.DeliveryFee)

	q = e.Quote(context.Background(), Input{
		Items:        []Item{{UnitPrice: 499, Quantity: 1}},
		DistanceKm:   4,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	})
	assert.Equal(t, int64(60), q.DeliveryFee)
}

func TestFeeOverride(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	override := int64(25)

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{UnitPrice: 100, Quantity: 1}},
		DistanceKm:   8,
		DeliveryType: models.DeliveryTypeDelivery,
		FeeOverride:  &override,
		Now:          testNow,
	})
	assert.Equal(t, int64(25), q.DeliveryFee)
}

func TestNegativeFeeOverrideClampsToZero(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	override := int64(-500)

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{UnitPrice: 100, Quantity: 1}},
		DistanceKm:   8,
		DeliveryType: models.DeliveryTypeDelivery,
		FeeOverride:  &override,
		Now:          testNow,
	})
	assert.Equal(t, int64(0), q.DeliveryFee)
	assert.Equal(t, int64(7), q.Tax)
	assert.Equal(t, int64(107), q.Total)
	assert.GreaterOrEqual(t, q.Total, int64(0))
}

func TestZeroQuantityCountsAsOne(t *testing.T) {
	e := NewEngine(testConfig(), nil)

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{UnitPrice: 80, Quantity: 0}},
		DeliveryType: models.DeliveryTypePickup,
		Now:          testNow,
	})
	assert.Equal(t, int64(80), q.Subtotal)
}

func TestCookTimeSlowestItemDominates(t *testing.T) {
	e := NewEngine(testConfig(), nil)

	// curry 15 + 2 extra qty minutes = 17 dominates noodle 12 and drink 2;
	// base 10 + 17 + 2 extra lines = 29 minutes.
	q := e.Quote(context.Background(), Input{
		Items: []Item{
			{Category: "noodle", UnitPrice: 60, Quantity: 1},
			{Category: "curry", UnitPrice: 120, Quantity: 2},
			{Category: "drink", UnitPrice: 25, Quantity: 3},
		},
		DeliveryType: models.DeliveryTypePickup,
		Now:          testNow,
	})

	assert.Equal(t, testNow.Add(29*time.Minute), q.ExpectedReadyAt)
}

func TestUnknownCategoryUsesDefaultMinutes(t *testing.T) {
	e := NewEngine(testConfig(), nil)

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{Category: "mystery", UnitPrice: 99, Quantity: 1}},
		DeliveryType: models.DeliveryTypePickup,
		Now:          testNow,
	})

	// base 10 + default 12
	assert.Equal(t, testNow.Add(22*time.Minute), q.ExpectedReadyAt)
}

func TestTravelEstimatorWinsOverHeuristic(t *testing.T) {
	e := NewEngine(testConfig(), fixedTravel{mins: 7, ok: true})

	q := e.Quote(context.Background(), Input{
		Items:        []Item{{Category: "drink", UnitPrice: 25, Quantity: 1}},
		DistanceKm:   4,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	})

	require.NotNil(t, q.ExpectedDeliveryAt)
	assert.Equal(t, q.ExpectedReadyAt.Add(7*time.Minute), *q.ExpectedDeliveryAt)
}

func TestTravelHeuristicFallbackWithFloor(t *testing.T) {
	e := NewEngine(testConfig(), fixedTravel{ok: false})

	// 4km at 25km/h is ~10 minutes; 1km would be 2 but floors at 10.
	q := e.Quote(context.Background(), Input{
		Items:        []Item{{Category: "drink", UnitPrice: 25, Quantity: 1}},
		DistanceKm:   1,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	})

	require.NotNil(t, q.ExpectedDeliveryAt)
	assert.Equal(t, q.ExpectedReadyAt.Add(10*time.Minute), *q.ExpectedDeliveryAt)

	// 20km at 25km/h is 48 minutes, above the floor.
	q = e.Quote(context.Background(), Input{
		Items:        []Item{{Category: "drink", UnitPrice: 25, Quantity: 1}},
		DistanceKm:   20,
		DeliveryType: models.DeliveryTypeDelivery,
		Now:          testNow,
	})
	require.NotNil(t, q.ExpectedDeliveryAt)
	assert.Equal(t, q.ExpectedReadyAt.Add(48*time.Minute), *q.ExpectedDeliveryAt)
}

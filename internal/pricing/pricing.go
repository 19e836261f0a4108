// Package pricing turns a cart plus delivery parameters into a financial
// breakdown and ready/delivery estimates.
package pricing

import (
	"context"
	"math"
	"strings"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/models"
)

// TravelEstimator supplies travel minutes for a delivery distance.
// ok=false means no estimate is available and the engine falls back to
// its distance/average-speed heuristic.
type TravelEstimator interface {
	TravelMinutes(ctx context.Context, distanceKm float64) (minutes int, ok bool)
}

// Item is a cart line as the engine sees it.
type Item struct {
	Name      string
	Category  string
	UnitPrice int64
	Quantity  int
}

// Input is everything a quote depends on. Now is injected so quotes are
// deterministic under test.
type Input struct {
	Items        []Item
	DistanceKm   float64
	DeliveryType string
	FeeOverride  *int64
	Now          time.Time
}

// Quote is the computed breakdown. The invariant
// Total == Subtotal + DeliveryFee + Tax - Discount holds by construction.
type Quote struct {
	Subtotal           int64
	DeliveryFee        int64
	Discount           int64
	Tax                int64
	Total              int64
	VATRate            float64
	ExpectedReadyAt    time.Time
	ExpectedDeliveryAt *time.Time
}

// Engine computes quotes from a static config and an optional travel
// estimator.
type Engine struct {
	cfg    config.PricingConfig
	travel TravelEstimator
}

// NewEngine creates a pricing engine. travel may be nil.
func NewEngine(cfg config.PricingConfig, travel TravelEstimator) *Engine {
	return &Engine{cfg: cfg, travel: travel}
}

// Quote prices a cart. Pure given identical inputs and config; only the
// two ETA fields depend on in.Now.
func (e *Engine) Quote(ctx context.Context, in Input) Quote {
	subtotal := e.subtotal(in.Items)
	fee := e.deliveryFee(subtotal, in)

	var discount int64 // promotion extension point

	tax := int64(math.Round(float64(subtotal+fee-discount) * e.cfg.VATRate))
	total := subtotal + fee + tax - discount

	readyAt := in.Now.Add(time.Duration(e.cookMinutes(in.Items)) * time.Minute)

	q := Quote{
		Subtotal:        subtotal,
		DeliveryFee:     fee,
		Discount:        discount,
		Tax:             tax,
		Total:           total,
		VATRate:         e.cfg.VATRate,
		ExpectedReadyAt: readyAt,
	}

	if in.DeliveryType == models.DeliveryTypeDelivery {
		deliveryAt := readyAt.Add(time.Duration(e.travelMinutes(ctx, in.DistanceKm)) * time.Minute)
		q.ExpectedDeliveryAt = &deliveryAt
	}

	return q
}

func (e *Engine) subtotal(items []Item) int64 {
	var sum int64
	for _, it := range items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		sum += it.UnitPrice * int64(qty)
	}
	return sum
}

// deliveryFee resolves the fee: pickup is free, an explicit override wins,
// otherwise the first tier whose MaxKm covers the distance applies, and a
// large enough subtotal forces the fee to zero.
func (e *Engine) deliveryFee(subtotal int64, in Input) int64 {
	if in.DeliveryType != models.DeliveryTypeDelivery {
		return 0
	}

	var fee int64
	if in.FeeOverride != nil {
		fee = *in.FeeOverride
		if fee < 0 {
			fee = 0
		}
	} else {
		fee = e.tierFee(in.DistanceKm)
	}

	if e.cfg.FreeDeliveryThreshold > 0 && subtotal >= e.cfg.FreeDeliveryThreshold {
		return 0
	}
	return fee
}

// tierFee walks the ascending tier list; a tier with MaxKm <= 0 is the
// unlimited catch-all.
func (e *Engine) tierFee(distanceKm float64) int64 {
	var catchAll int64
	for _, tier := range e.cfg.DeliveryTiers {
		if tier.MaxKm <= 0 {
			catchAll = tier.Fee
			continue
		}
		if distanceKm <= tier.MaxKm {
			return tier.Fee
		}
	}
	return catchAll
}

// cookMinutes estimates kitchen time: the slowest line dominates, with a
// small linear overhead for basket depth and breadth.
func (e *Engine) cookMinutes(items []Item) int {
	if len(items) == 0 {
		return e.cfg.BaseCookMinutes
	}

	slowest := 0
	for _, it := range items {
		mins, ok := e.cfg.CategoryCookMinutes[strings.ToLower(it.Category)]
		if !ok {
			mins = e.cfg.DefaultCookMinutes
		}
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		mins += e.cfg.PerExtraQtyMinutes * (qty - 1)
		if mins > slowest {
			slowest = mins
		}
	}

	return e.cfg.BaseCookMinutes + slowest + e.cfg.PerExtraLineMinutes*(len(items)-1)
}

// travelMinutes asks the estimator first, then falls back to straight
// distance over average speed with a minimum floor.
func (e *Engine) travelMinutes(ctx context.Context, distanceKm float64) int {
	if e.travel != nil {
		if mins, ok := e.travel.TravelMinutes(ctx, distanceKm); ok {
			return mins
		}
	}

	mins := int(math.Round(distanceKm / e.cfg.AvgSpeedKmh * 60))
	if mins < e.cfg.MinTravelMinutes {
		mins = e.cfg.MinTravelMinutes
	}
	return mins
}

package service

import (
	"context"
	"time"

	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

const travelCacheTTL = 15 * time.Minute

// CachedTravelEstimator answers travel-minute lookups for the pricing
// engine: Redis cache first, then the routing collaborator, otherwise it
// reports no estimate so the engine falls back to its heuristic.
type CachedTravelEstimator struct {
	cache   *redisclient.Client
	routing RoutingClient
	logger  *zap.Logger
}

// NewCachedTravelEstimator creates an estimator. Both cache and routing
// may be nil.
func NewCachedTravelEstimator(cache *redisclient.Client, routing RoutingClient) *CachedTravelEstimator {
	return &CachedTravelEstimator{
		cache:   cache,
		routing: routing,
		logger:  util.NamedLogger("travel"),
	}
}

// TravelMinutes implements pricing.TravelEstimator.
func (e *CachedTravelEstimator) TravelMinutes(ctx context.Context, distanceKm float64) (int, bool) {
	if e.cache != nil {
		mins, ok, err := e.cache.GetTravelMinutes(ctx, distanceKm)
		if err != nil {
			e.logger.Warn("travel cache read failed", zap.Error(err))
		} else if ok {
			return mins, true
		}
	}

	if e.routing == nil {
		return 0, false
	}

	mins, err := e.routing.RouteMinutes(ctx, distanceKm)
	if err != nil {
		e.logger.Warn("routing estimate failed, falling back to heuristic",
			zap.Float64("distance_km", distanceKm),
			zap.Error(err))
		return 0, false
	}

	if e.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.cache.SetTravelMinutes(ctx, distanceKm, mins, travelCacheTTL); err != nil {
				e.logger.Warn("travel cache write failed", zap.Error(err))
			}
		}()
	}

	return mins, true
}

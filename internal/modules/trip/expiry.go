// README: Offer expiry monitor: pending offers older than the TTL are
// auto-declined on behalf of the system.
package trip

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"linehaul/internal/config"
)

// RunOfferExpiry ticks until the context is cancelled. A zero TTL disables
// expiry entirely: the offer then waits for an explicit decline or a manager
// reassignment.
func (s *Service) RunOfferExpiry(ctx context.Context, cfg config.OfferConfig) {
	if cfg.TTL <= 0 {
		return
	}
	tick := time.Duration(cfg.SweepSeconds) * time.Second
	if tick <= 0 {
		tick = 30 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireOffers(ctx, time.Now().Add(-cfg.TTL))
		}
	}
}

func (s *Service) expireOffers(ctx context.Context, cutoff time.Time) {
	stale, err := s.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("offer expiry sweep failed", zap.Error(err))
		return
	}
	for _, t := range stale {
		if _, err := s.decline(ctx, t.ID, t.DriverID, "system"); err != nil {
			// A concurrent accept or decline winning the race is expected.
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConflict) {
				continue
			}
			s.log.Warn("offer expiry decline failed",
				zap.String("trip_id", string(t.ID)), zap.Error(err))
			continue
		}
		s.log.Info("pending offer expired",
			zap.String("trip_id", string(t.ID)),
			zap.String("driver_id", string(t.DriverID)))
	}
}

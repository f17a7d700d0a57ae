package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// PriceService accepts pushed token prices and records them in the cache.
// The core never fetches prices itself; upstream collectors push them in.
type PriceService struct {
	prices domain.PriceCache
	logger *slog.Logger
}

// NewPriceService creates a PriceService over the given cache.
func NewPriceService(prices domain.PriceCache, logger *slog.Logger) *PriceService {
	return &PriceService{
		prices: prices,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Update stores the pushed prices with the given observation time. Prices
// at or below zero are rejected rather than silently cached.
func (s *PriceService) Update(ctx context.Context, prices map[string]float64, observedAt time.Time) error {
	for tokenID, price := range prices {
		if price <= 0 {
			return fmt.Errorf("price_service: token %s: non-positive price %v", tokenID, price)
		}
	}

	for tokenID, price := range prices {
		if err := s.prices.SetPrice(ctx, tokenID, price, observedAt); err != nil {
			return fmt.Errorf("price_service: set price %s: %w", tokenID, err)
		}
	}

	s.logger.DebugContext(ctx, "price_service: prices updated",
		slog.Int("tokens", len(prices)),
	)
	return nil
}

// Lookup returns the cached price and observation time for one token.
func (s *PriceService) Lookup(ctx context.Context, tokenID string) (float64, time.Time, error) {
	price, ts, err := s.prices.GetPrice(ctx, tokenID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get price %s: %w", tokenID, err)
	}
	return price, ts, nil
}

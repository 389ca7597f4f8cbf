package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// PriceCache stores close prices by key
type PriceCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// KeyFunc builds the cache key of one close
type KeyFunc func(symbol string, asof time.Time) string

// CachedFacts serves ClosePrices through a read-through cache; every other fact passes through
type CachedFacts struct {
	contracts.Facts
	cache  PriceCache
	key    KeyFunc
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedFacts wraps next with a close-price cache
func NewCachedFacts(next contracts.Facts, cache PriceCache, key KeyFunc, ttl time.Duration, log *logger.Logger) *CachedFacts {
	return &CachedFacts{
		Facts:  next,
		cache:  cache,
		key:    key,
		ttl:    ttl,
		logger: log,
	}
}

// ClosePrices returns cached closes and loads only the misses from the underlying facts.
// Cache failures degrade to a direct load.
func (f *CachedFacts) ClosePrices(ctx context.Context, asof time.Time, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	misses := make([]string, 0, len(symbols))

	for _, sym := range symbols {
		var px decimal.Decimal
		found, err := f.cache.Get(ctx, f.key(sym, asof), &px)
		if err != nil {
			f.logger.WithError(err).WithField("symbol", sym).Warn("Price cache read failed")
		}
		if found && err == nil {
			out[sym] = px
			continue
		}
		misses = append(misses, sym)
	}

	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := f.Facts.ClosePrices(ctx, asof, misses)
	if err != nil {
		return nil, fmt.Errorf("failed to load close prices: %w", err)
	}

	for sym, px := range loaded {
		out[sym] = px
		// 양수 종가만 캐시 (누락/0 은 다음 실행에서 재조회)
		if !px.IsPositive() {
			continue
		}
		if err := f.cache.Set(ctx, f.key(sym, asof), px, f.ttl); err != nil {
			f.logger.WithError(err).WithField("symbol", sym).Warn("Price cache write failed")
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"asof":   asof.Format(contracts.DateLayout),
		"hits":   len(symbols) - len(misses),
		"misses": len(misses),
	}).Debug("Close prices loaded")

	return out, nil
}

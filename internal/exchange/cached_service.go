package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL    = 12 * time.Hour
	maxCleanupInterval = 5 * time.Minute
)

type cachedRate struct {
	rate      Rate
	expiresAt time.Time
}

// CachedProvider wraps a RateProvider with an in-memory TTL cache keyed by
// currency pair and day. Concurrent misses for one key share a single
// upstream request, and the newest rate per pair is kept for LastKnown.
type CachedProvider struct {
	inner RateProvider
	ttl   time.Duration
	group singleflight.Group

	mu          sync.RWMutex
	rates       map[string]cachedRate
	lastKnown   map[string]Rate
	lastCleanup time.Time
}

// NewCachedProvider returns a provider that caches exchange rates in memory.
func NewCachedProvider(inner RateProvider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{
		inner:     inner,
		ttl:       ttl,
		rates:     make(map[string]cachedRate),
		lastKnown: make(map[string]Rate),
	}
}

func pairKey(fromCurrency, toCurrency string) string {
	return normalizeCode(fromCurrency) + "->" + normalizeCode(toCurrency)
}

func cacheKey(fromCurrency, toCurrency string, at time.Time) string {
	day := "latest"
	if !at.IsZero() {
		day = at.UTC().Format(frankfurterDateLayout)
	}
	return pairKey(fromCurrency, toCurrency) + "@" + day
}

// RateAt returns the rate for the day, from cache when it is still fresh.
// A caller whose ctx ends stops waiting without cancelling the shared fetch.
func (s *CachedProvider) RateAt(ctx context.Context, fromCurrency, toCurrency string, at time.Time) (Rate, error) {
	if s.inner == nil {
		return Rate{}, errors.New("inner rate provider is required")
	}

	key := cacheKey(fromCurrency, toCurrency, at)
	if rate, ok := s.cached(key, time.Now()); ok {
		return rate, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		if rate, ok := s.cached(key, time.Now()); ok {
			return rate, nil
		}
		return s.fetch(fetchCtx, key, fromCurrency, toCurrency, at)
	})

	select {
	case <-ctx.Done():
		return Rate{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Rate{}, res.Err
		}
		return res.Val.(Rate), nil
	}
}

// LastKnown returns the most recently published rate fetched for the pair,
// ignoring expiry and date. It never calls upstream.
func (s *CachedProvider) LastKnown(fromCurrency, toCurrency string) (Rate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.lastKnown[pairKey(fromCurrency, toCurrency)]
	return rate, ok
}

func (s *CachedProvider) cached(key string, now time.Time) (Rate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rates[key]
	if !ok || !now.Before(entry.expiresAt) {
		return Rate{}, false
	}
	return entry.rate, true
}

func (s *CachedProvider) fetch(ctx context.Context, key, fromCurrency, toCurrency string, at time.Time) (Rate, error) {
	rate, err := s.inner.RateAt(ctx, fromCurrency, toCurrency, at)
	if err != nil {
		return Rate{}, err
	}
	if err := validateConversionRate(rate.Value); err != nil {
		return Rate{}, err
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rates[key] = cachedRate{rate: rate, expiresAt: now.Add(s.ttl)}
	pair := pairKey(fromCurrency, toCurrency)
	if prev, ok := s.lastKnown[pair]; !ok || !rate.Date.Before(prev.Date) {
		s.lastKnown[pair] = rate
	}
	s.evictExpiredLocked(now)
	return rate, nil
}

func (s *CachedProvider) evictExpiredLocked(now time.Time) {
	if !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < min(s.ttl, maxCleanupInterval) {
		return
	}
	for key, entry := range s.rates {
		if !now.Before(entry.expiresAt) {
			delete(s.rates, key)
		}
	}
	s.lastCleanup = now
}

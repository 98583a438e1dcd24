package runner

import (
	"sync"
	"time"
)

type cachedPrice struct {
	price float64
	at    time.Time
}

// PriceCache — последняя известная цена по символу. Живёт столько же, сколько Runner,
// и передаётся обоим циклам по указателю. Используется только как фолбэк.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]cachedPrice

	maxAge time.Duration
	now    func() time.Time
}

// NewPriceCache: maxAge <= 0 — без ограничения свежести.
func NewPriceCache(maxAge time.Duration) *PriceCache {
	return &PriceCache{
		prices: make(map[string]cachedPrice),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Set сохраняет цену, если она не старее уже известной.
func (c *PriceCache) Set(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.prices[symbol]; ok && cur.at.After(at) {
		return
	}
	c.prices[symbol] = cachedPrice{price: price, at: at}
}

// Get отдаёт цену, только если она не протухла.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	cp, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if c.maxAge > 0 && c.now().Sub(cp.at) > c.maxAge {
		return 0, false
	}
	return cp.price, true
}

func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceCacheStaleness(t *testing.T) {
	t.Parallel()

	now := testNow
	c := NewPriceCache(30 * time.Second)
	c.now = func() time.Time { return now }

	_, ok := c.Get("BTCUSDT")
	assert.False(t, ok)

	c.Set("BTCUSDT", 100, now)
	p, ok := c.Get("BTCUSDT")
	assert.True(t, ok)
	assert.InDelta(t, 100, p, 1e-9)

	now = now.Add(30 * time.Second)
	_, ok = c.Get("BTCUSDT")
	assert.True(t, ok, "boundary is inclusive")

	now = now.Add(time.Millisecond)
	_, ok = c.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestPriceCacheIgnoresOlderAndInvalidQuotes(t *testing.T) {
	t.Parallel()

	c := NewPriceCache(0)
	c.Set("X", 10, testNow)
	c.Set("X", 9, testNow.Add(-time.Second))
	c.Set("X", 0, testNow.Add(time.Second))
	c.Set("X", -1, testNow.Add(time.Second))

	p, ok := c.Get("X")
	assert.True(t, ok)
	assert.InDelta(t, 10, p, 1e-9)
	assert.Equal(t, 1, c.Len())
}

func TestPriceCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewPriceCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set("X", float64(i*1000+j+1), time.Now())
				c.Get("X")
			}
		}(i)
	}
	wg.Wait()
	_, ok := c.Get("X")
	assert.True(t, ok)
}

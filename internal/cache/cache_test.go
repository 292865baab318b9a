package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock avanza manualmente para testear TTL sin dormir.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCache(ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(ttl, maxSize, clk.Now), clk
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Set("tier", "premium")

	v, ok := c.Get("tier")
	assert.True(t, ok)
	assert.Equal(t, "premium", v)
}

func TestCache_Miss(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c, clk := newTestCache(time.Minute, 0)
	c.Set("tier", "premium")

	clk.Advance(59 * time.Second)
	_, ok := c.Get("tier")
	assert.True(t, ok)

	clk.Advance(2 * time.Second)
	_, ok = c.Get("tier")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_BoundedEviction(t *testing.T) {
	c, _ := newTestCache(time.Minute, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	assert.LessOrEqual(t, c.Len(), 2)

	v, ok := c.Get("c")
	assert.True(t, ok, "la escritura más reciente sobrevive")
	assert.Equal(t, 3, v)
}

func TestCache_EvictsExpiredBeforeDroppingLive(t *testing.T) {
	c, clk := newTestCache(time.Minute, 2)
	c.Set("old", 1)
	clk.Advance(2 * time.Minute)
	c.Set("a", 2)
	c.Set("b", 3)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.True(t, okA)
	assert.True(t, okB)
}

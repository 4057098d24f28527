package providercache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_MissWhenEmpty(t *testing.T) {
	c := NewCache[int](time.Minute)
	_, ok := c.Get()
	assert.False(t, ok)
}

func TestCache_HitWithinTTL(t *testing.T) {
	c := NewCache[string](time.Minute)
	c.Set("forecast-v1")

	got, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "forecast-v1", got)
}

func TestCache_MissAfterTTL(t *testing.T) {
	c := NewCache[int](10 * time.Millisecond)
	c.Set(42)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get()
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache[int](time.Minute)
	c.Set(7)
	c.Invalidate()

	_, ok := c.Get()
	assert.False(t, ok)
}

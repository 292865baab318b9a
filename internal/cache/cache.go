package cache

// cache.go — cache acotada con TTL, invalidación explícita y reloj
// inyectable para poder testear expiración sin dormir.

import (
	"sync"
	"time"
)

// Clock devuelve el instante actual; inyectable en tests.
type Clock func() time.Time

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache es un mapa con TTL y límite de entradas, protegido por mutex.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
	clock   Clock
}

// New crea una Cache con el TTL dado. maxSize <= 0 significa sin límite;
// clock nil usa time.Now.
func New(ttl time.Duration, maxSize int, clock Clock) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clock,
	}
}

// Get devuelve el valor si existe y no expiró.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set guarda el valor con el TTL de la cache. Si se alcanzó el límite,
// expulsa primero las entradas caducadas y si no basta rechaza la escritura
// más antigua barriendo una entrada arbitraria.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictExpired(now)
		if len(c.entries) >= c.maxSize {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(c.ttl)}
}

// Clear vacía la cache por completo.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len devuelve el número de entradas, incluidas las aún no barridas.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictExpired elimina las entradas caducadas. Caller sujeta el lock.
func (c *Cache) evictExpired(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

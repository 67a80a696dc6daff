package session

import "sync"

// Cache is the Runtime's session_id -> Context map. Writes (creating a new
// session) use a short exclusive lock; reads take a shared read lock on the
// map (individual Context mutation is guarded by its own lock).
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]*Context
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{sessions: make(map[string]*Context)}
}

// Get returns the cached Context for sessionID, if any.
func (c *Cache) Get(sessionID string) (*Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, ok := c.sessions[sessionID]
	return ctx, ok
}

// GetOrCreate returns the existing Context for sessionID, or creates and
// caches a new one via factory if absent. The bool result reports whether a
// new Context was created.
func (c *Cache) GetOrCreate(sessionID string, factory func() *Context) (*Context, bool) {
	c.mu.RLock()
	ctx, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if ok {
		return ctx, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx, ok := c.sessions[sessionID]; ok {
		return ctx, false
	}
	ctx = factory()
	c.sessions[sessionID] = ctx
	return ctx, true
}

// Delete evicts a session's Context from the cache.
func (c *Cache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// List returns every cached Context, in no particular order.
func (c *Cache) List() []*Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Context, 0, len(c.sessions))
	for _, ctx := range c.sessions {
		out = append(out, ctx)
	}
	return out
}

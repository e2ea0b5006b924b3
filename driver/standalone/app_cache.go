package standalone

import (
	"sync"

	"github.com/tsmdev/tsm/driver"
)

// appCache is the session's app-id -> Application map. Single writer per
// session API call, concurrent readers.
type appCache struct {
	mu   sync.Mutex
	apps map[string]*driver.Application
}

func newAppCache() *appCache {
	return &appCache{apps: map[string]*driver.Application{}}
}

func (c *appCache) put(appID string, app *driver.Application) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps[appID] = app
}

func (c *appCache) get(appID string) (*driver.Application, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, ok := c.apps[appID]
	return app, ok
}

func (c *appCache) remove(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.apps, appID)
}

// prune drops every cached id that is not in known.
func (c *appCache) prune(known map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.apps {
		if !known[id] {
			delete(c.apps, id)
		}
	}
}

// snapshot returns a copy so callers can iterate without holding the lock.
func (c *appCache) snapshot() map[string]*driver.Application {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]*driver.Application, len(c.apps))
	for id, app := range c.apps {
		snapshot[id] = app
	}
	return snapshot
}

package scraper

import (
	"sync"

	"fansync/pkg/models"
)

// userCache keeps recently resolved user details. When full, the oldest
// entry is evicted.
type userCache struct {
	capacity int

	mu    sync.Mutex
	order []int64
	users map[int64]models.RemoteUser
}

const defaultUserCacheSize = 512

func newUserCache(capacity int) *userCache {
	if capacity < 1 {
		capacity = defaultUserCacheSize
	}
	return &userCache{capacity: capacity, users: make(map[int64]models.RemoteUser)}
}

func (c *userCache) get(id int64) (models.RemoteUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	return u, ok
}

func (c *userCache) put(u models.RemoteUser) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.users[u.ID]; ok {
		c.users[u.ID] = u
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.users, oldest)
	}
	c.order = append(c.order, u.ID)
	c.users[u.ID] = u
}

func (c *userCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.users = make(map[int64]models.RemoteUser)
}

func (c *userCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

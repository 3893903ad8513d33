package cache

import (
	"sync"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/domain/user"
)

// UserList is a single-value TTL snapshot of the user listing. Any
// write to the store invalidates it; a stale read costs at most one ttl
// window of drift on a read-heavy endpoint.
type UserList struct {
	mu  sync.RWMutex
	ttl time.Duration

	users []user.User
	exp   time.Time
	set   bool
}

func NewUserList(ttl time.Duration) *UserList {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &UserList{ttl: ttl}
}

func (c *UserList) Get() ([]user.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.set || time.Now().After(c.exp) {
		return nil, false
	}

	return c.users, true
}

func (c *UserList) Set(users []user.User) {
	c.mu.Lock()
	c.users = users
	c.exp = time.Now().Add(c.ttl)
	c.set = true
	c.mu.Unlock()
}

func (c *UserList) Invalidate() {
	c.mu.Lock()
	c.users = nil
	c.set = false
	c.mu.Unlock()
}

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Session is the authentication material for one address. It lives until the
// process exits.
type Session struct {
	Headers map[string]string
	Token   string
}

// Header returns a copy of the request headers, safe to mutate.
func (s *Session) Header() map[string]string {
	out := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		out[k] = v
	}
	return out
}

// Cache maps addresses to sessions. Lookups are lock-free for readers of
// other addresses; creation is serialised per address.
type Cache struct {
	mu       sync.RWMutex
	sessions map[common.Address]*Session
	locks    sync.Map // common.Address -> *sync.Mutex
}

func NewCache() *Cache {
	return &Cache{sessions: make(map[common.Address]*Session)}
}

func (c *Cache) Get(addr common.Address) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[addr]
	return s, ok
}

// Put stores s. Sessions without a token are refused.
func (c *Cache) Put(addr common.Address, s *Session) error {
	if s == nil || s.Token == "" {
		return fmt.Errorf("refusing to cache empty session for %s", addr.Hex())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[addr] = s
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cache) lockFor(addr common.Address) *sync.Mutex {
	m, _ := c.locks.LoadOrStore(addr, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// GetOrCreate returns the cached session for addr, or calls create and
// caches its result. A failed or empty create leaves the cache untouched.
func (c *Cache) GetOrCreate(ctx context.Context, addr common.Address, create func(ctx context.Context) (*Session, error)) (*Session, bool, error) {
	if s, ok := c.Get(addr); ok {
		return s, true, nil
	}

	l := c.lockFor(addr)
	l.Lock()
	defer l.Unlock()

	if s, ok := c.Get(addr); ok {
		return s, true, nil
	}

	s, err := create(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(addr, s); err != nil {
		return nil, false, err
	}
	return s, false, nil
}

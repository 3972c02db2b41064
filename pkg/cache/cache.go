// Package cache is an in-memory LRU byte cache with per-entry TTL, used on
// the order read path.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const sweepInterval = 2 * time.Minute

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type LRU struct {
	capacity int
	ttl      time.Duration

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.index[key]
	if !ok {
		return nil, false
	}

	ent := ele.Value.(*entry)
	if time.Now().After(ent.expiresAt) {
		c.remove(ele)
		return nil, false
	}

	c.order.MoveToFront(ele)
	return ent.value, true
}

func (c *LRU) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.index[key]; ok {
		c.order.MoveToFront(ele)
		ent := ele.Value.(*entry)
		ent.value = value
		ent.expiresAt = time.Now().Add(c.ttl)
		return
	}

	ele := c.order.PushFront(&entry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)})
	c.index[key] = ele

	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

// Invalidate drops a key, used after a status update so the next read does
// not serve the stale order.
func (c *LRU) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.index[key]; ok {
		c.remove(ele)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU) remove(ele *list.Element) {
	c.order.Remove(ele)
	delete(c.index, ele.Value.(*entry).key)
}

// Start launches the expired-entry sweeper. Satisfies the app starter hook.
func (c *LRU) Start(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *LRU) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for ele := c.order.Back(); ele != nil; {
		prev := ele.Prev()
		if now.After(ele.Value.(*entry).expiresAt) {
			c.remove(ele)
		}
		ele = prev
	}
}

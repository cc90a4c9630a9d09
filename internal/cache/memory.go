package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const expirySweepLimit = 8

// Memory is an in-process TTL + LRU cache. Whichever limit triggers first evicts.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	key       string
	result    models.AnalysisResult
	expiresAt time.Time
}

func NewMemory(maxEntries int) *Memory {
	return NewMemoryWithClock(maxEntries, time.Now)
}

func NewMemoryWithClock(maxEntries int, now func() time.Time) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultCapacity
	}
	return &Memory{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        now,
	}
}

func (c *Memory) Get(_ context.Context, key string) (models.AnalysisResult, bool) {
	if key == "" {
		return models.AnalysisResult{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return models.AnalysisResult{}, false
	}

	entry := elem.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses.Add(1)
		return models.AnalysisResult{}, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)

	return copyResult(entry.result), true
}

// Put overwrites any existing entry for key (last writer wins).
func (c *Memory) Put(_ context.Context, key string, result models.AnalysisResult, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}

	now := c.now()
	expiresAt := now.Add(ttl)
	result = copyResult(result)
	result.Cached = false

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.result = result
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&memoryEntry{
		key:       key,
		result:    result,
		expiresAt: expiresAt,
	})
	c.entries[key] = elem

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Memory) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// evictExpiredLocked looks at no more than expirySweepLimit entries from the
// cold end; Get drops anything expired that the sweep does not reach.
func (c *Memory) evictExpiredLocked(now time.Time) {
	elem := c.order.Back()
	for i := 0; i < expirySweepLimit && elem != nil; i++ {
		prev := elem.Prev()
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

func (c *Memory) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *Memory) removeElement(elem *list.Element) {
	delete(c.entries, elem.Value.(*memoryEntry).key)
	c.order.Remove(elem)
}

func copyResult(r models.AnalysisResult) models.AnalysisResult {
	r.Keywords = slices.Clone(r.Keywords)
	return r
}

package cache

import (
	"container/list"
	"sync"

	"kwscan/internal/domain"
	"kwscan/internal/port"
)

// Memo is an in-process LRU of file outcomes keyed by content digest. It
// dedupes identical files (vendored copies, generated stubs) within a run.
// Every operation is O(1) so the shared lock is held only briefly.
type Memo struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is least recently used
	maxSize int
	hits    int64
	misses  int64
}

type memoEntry struct {
	key     string
	outcome domain.FileOutcome
}

func NewMemo(maxSize int) *Memo {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Memo{
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func (c *Memo) Get(key string) (domain.FileOutcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.entries[key]
	if !exists {
		c.misses++
		return domain.FileOutcome{}, false, nil
	}
	c.hits++
	c.order.MoveToBack(el)
	return el.Value.(*memoEntry).outcome, true, nil
}

func (c *Memo) Put(key string, outcome domain.FileOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.entries[key]; exists {
		el.Value.(*memoEntry).outcome = outcome
		c.order.MoveToBack(el)
		return nil
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = c.order.PushBack(&memoEntry{key: key, outcome: outcome})
	return nil
}

func (c *Memo) Close() error {
	return nil
}

func (c *Memo) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
}

func (c *Memo) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts since creation.
func (c *Memo) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Memo) evictOldest() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*memoEntry).key)
}

// Tiered consults the memo before a persistent cache and fills the memo
// from it.
type Tiered struct {
	memo    *Memo
	backing port.ResultCache
}

func NewTiered(memo *Memo, backing port.ResultCache) *Tiered {
	return &Tiered{
		memo:    memo,
		backing: backing,
	}
}

func (t *Tiered) Get(key string) (domain.FileOutcome, bool, error) {
	if outcome, hit, _ := t.memo.Get(key); hit {
		return outcome, true, nil
	}
	if t.backing == nil {
		return domain.FileOutcome{}, false, nil
	}

	outcome, hit, err := t.backing.Get(key)
	if err != nil || !hit {
		return outcome, hit, err
	}
	t.memo.Put(key, outcome)
	return outcome, true, nil
}

func (t *Tiered) Put(key string, outcome domain.FileOutcome) error {
	t.memo.Put(key, outcome)
	if t.backing == nil {
		return nil
	}
	return t.backing.Put(key, outcome)
}

func (t *Tiered) Close() error {
	if t.backing == nil {
		return nil
	}
	return t.backing.Close()
}

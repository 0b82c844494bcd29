package storage

import (
	"hash/fnv"
	"sync"

	"github.com/reclass-go/reclass/pkg/reclass"
)

// entityShard is a single shard of a write-once entity cache, adapted
// from graft's internal.ConcurrentCache sharding scheme — sharded by
// key hash to reduce lock contention, but write-once rather than
// LRU-evicting, matching the "populated once per (class-name,
// environment) and treated as write-once" rule (spec.md §5).
type entityShard struct {
	mu    sync.RWMutex
	items map[string]*reclass.Entity
}

type entityCache struct {
	shards    []*entityShard
	shardMask uint32
}

func newEntityCache(shardCount int) *entityCache {
	n := 1
	for n < shardCount {
		n <<= 1
	}
	c := &entityCache{shards: make([]*entityShard, n), shardMask: uint32(n - 1)}
	for i := range c.shards {
		c.shards[i] = &entityShard{items: map[string]*reclass.Entity{}}
	}
	return c
}

func (c *entityCache) shardFor(key string) *entityShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()&c.shardMask]
}

func (c *entityCache) get(key string) (*reclass.Entity, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return e, ok
}

// getOrCompute returns the cached entity for key, computing and
// storing it via compute on a miss. Never overwrites an existing
// entry: concurrent misses for the same key may both call compute,
// but only the first result observed under lock wins, matching the
// original memcache_proxy's try/except KeyError pattern translated to
// a safe concurrent form.
func (c *entityCache) getOrCompute(key string, compute func() (*reclass.Entity, error)) (*reclass.Entity, error) {
	if e, ok := c.get(key); ok {
		return e, nil
	}
	e, err := compute()
	if err != nil {
		return nil, err
	}
	s := c.shardFor(key)
	s.mu.Lock()
	if existing, ok := s.items[key]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.items[key] = e
	s.mu.Unlock()
	return e, nil
}

func (c *entityCache) invalidate(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

func (c *entityCache) clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.items = map[string]*reclass.Entity{}
		s.mu.Unlock()
	}
}

// MemcacheProxy layers a per-name node cache and a per-(environment,
// name) class cache over a real Backend, plus an optional cached node
// list (spec.md §6 "The memcache proxy layers a per-name and
// per-(environment, name) table over any backend"; grounded on the
// original reclass.storage.memcache_proxy.MemcacheProxy).
type MemcacheProxy struct {
	real Backend

	cacheNodes    bool
	cacheClasses  bool
	cacheNodelist bool

	nodes   *entityCache
	classes *entityCache

	nodelistMu    sync.Mutex
	nodelistCache []string
	nodelistSet   bool
}

// NewMemcacheProxy wraps real with write-once caches for nodes,
// classes, and the node list.
func NewMemcacheProxy(real Backend, cacheNodes, cacheClasses, cacheNodelist bool) *MemcacheProxy {
	return &MemcacheProxy{
		real:          real,
		cacheNodes:    cacheNodes,
		cacheClasses:  cacheClasses,
		cacheNodelist: cacheNodelist,
		nodes:         newEntityCache(16),
		classes:       newEntityCache(16),
	}
}

func (p *MemcacheProxy) Name() string { return "memcache_proxy(" + p.real.Name() + ")" }

func (p *MemcacheProxy) GetNode(name string, settings *reclass.Settings) (*reclass.Entity, error) {
	if !p.cacheNodes {
		return p.real.GetNode(name, settings)
	}
	return p.nodes.getOrCompute(name, func() (*reclass.Entity, error) {
		return p.real.GetNode(name, settings)
	})
}

func (p *MemcacheProxy) GetClass(name, environment string, settings *reclass.Settings) (*reclass.Entity, error) {
	if !p.cacheClasses {
		return p.real.GetClass(name, environment, settings)
	}
	key := environment + "\x00" + name
	return p.classes.getOrCompute(key, func() (*reclass.Entity, error) {
		return p.real.GetClass(name, environment, settings)
	})
}

func (p *MemcacheProxy) EnumerateNodes() ([]string, error) {
	if !p.cacheNodelist {
		return p.real.EnumerateNodes()
	}
	p.nodelistMu.Lock()
	defer p.nodelistMu.Unlock()
	if p.nodelistSet {
		return p.nodelistCache, nil
	}
	names, err := p.real.EnumerateNodes()
	if err != nil {
		return nil, err
	}
	p.nodelistCache = names
	p.nodelistSet = true
	return names, nil
}

// InvalidateAll drops every cached entry, used by the filesystem
// watcher when the underlying storage tree changes on disk.
func (p *MemcacheProxy) InvalidateAll() {
	p.nodes.clear()
	p.classes.clear()
	p.nodelistMu.Lock()
	p.nodelistSet = false
	p.nodelistCache = nil
	p.nodelistMu.Unlock()
}

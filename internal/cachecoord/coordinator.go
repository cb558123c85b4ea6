// Package cachecoord is the Distributed Cache Coordinator: namespaced,
// TTL-governed operations over a clustered key/value store, with an
// in-process LRU shadow for LRU-policy namespaces and bulk/warmup support.
package cachecoord

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
)

// Coordinator is the single entry point every domain service uses to read
// and write cached data.
type Coordinator struct {
	store      store
	namespaces map[string]NamespaceConfig
	shadows    map[string]*lru.Cache[string, []byte]

	hits, misses, evictions int64
	usedBytes               int64
}

// New builds a Coordinator. addrs is the comma-split DSR_CACHE_NODES list;
// an empty list selects the in-process fallback store.
func New(addrs []string, namespaces []NamespaceConfig) (*Coordinator, error) {
	var s store
	if len(addrs) == 0 {
		s = newMemoryStore()
	} else {
		s = newRedisStore(addrs)
	}

	c := &Coordinator{
		store:      s,
		namespaces: make(map[string]NamespaceConfig, len(namespaces)),
		shadows:    make(map[string]*lru.Cache[string, []byte]),
	}
	for _, ns := range namespaces {
		c.namespaces[ns.Name] = ns
		if ns.Eviction == EvictLRU {
			size := ns.MaxEntries
			if size <= 0 {
				size = 10_000
			}
			shadow, err := lru.New[string, []byte](size)
			if err != nil {
				return nil, err
			}
			c.shadows[ns.Name] = shadow
		}
	}
	return c, nil
}

// Namespaces returns the configured namespace names, used by the
// administrative "clear all" endpoint to sweep every namespace in turn.
func (c *Coordinator) Namespaces() []string {
	out := make([]string, 0, len(c.namespaces))
	for name := range c.namespaces {
		out = append(out, name)
	}
	return out
}

func (c *Coordinator) namespace(name string) (NamespaceConfig, error) {
	ns, ok := c.namespaces[name]
	if !ok {
		return NamespaceConfig{}, errors.NotFound("namespace", name)
	}
	return ns, nil
}

func fullKey(namespace, key string) string { return namespace + ":" + key }

func (c *Coordinator) encode(ns NamespaceConfig, value []byte) ([]byte, error) {
	if !ns.Compression {
		return value, nil
	}
	return gzipCompress(value)
}

func (c *Coordinator) decode(ns NamespaceConfig, value []byte) ([]byte, error) {
	if !ns.Compression {
		return value, nil
	}
	return gzipDecompress(value)
}

// Get returns the cached value for (namespace, key), consulting the
// in-process LRU shadow first for LRU-policy namespaces.
func (c *Coordinator) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	ns, err := c.namespace(namespace)
	if err != nil {
		return nil, false, err
	}

	if shadow, ok := c.shadows[namespace]; ok {
		if raw, ok := shadow.Get(fullKey(namespace, key)); ok {
			atomic.AddInt64(&c.hits, 1)
			return raw, true, nil
		}
	}

	raw, found, err := c.store.get(ctx, fullKey(namespace, key))
	if err != nil {
		return nil, false, errors.AdapterFailure("cache", err)
	}
	if !found {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	value, err := c.decode(ns, raw)
	if err != nil {
		return nil, false, errors.IntegrityFailure("cache value decode failed", err)
	}
	if shadow, ok := c.shadows[namespace]; ok {
		shadow.Add(fullKey(namespace, key), value)
	}
	atomic.AddInt64(&c.hits, 1)
	return value, true, nil
}

// Put stores value under (namespace, key) using the namespace's configured
// TTL.
func (c *Coordinator) Put(ctx context.Context, namespace, key string, value []byte) error {
	ns, err := c.namespace(namespace)
	if err != nil {
		return err
	}
	encoded, err := c.encode(ns, value)
	if err != nil {
		return errors.IntegrityFailure("cache value encode failed", err)
	}
	if err := c.store.set(ctx, fullKey(namespace, key), encoded, ns.TTL); err != nil {
		return errors.AdapterFailure("cache", err)
	}
	if shadow, ok := c.shadows[namespace]; ok {
		shadow.Add(fullKey(namespace, key), value)
	}
	atomic.AddInt64(&c.usedBytes, int64(len(encoded)))
	return nil
}

// GetBulk reads several keys from one namespace, omitting any that miss.
func (c *Coordinator) GetBulk(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, found, err := c.Get(ctx, namespace, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = v
		}
	}
	return out, nil
}

// PutBulk writes every entry into one namespace.
func (c *Coordinator) PutBulk(ctx context.Context, namespace string, entries map[string][]byte) error {
	for k, v := range entries {
		if err := c.Put(ctx, namespace, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Evict removes one key from a namespace, including its shadow entry.
func (c *Coordinator) Evict(ctx context.Context, namespace, key string) error {
	if _, err := c.namespace(namespace); err != nil {
		return err
	}
	if shadow, ok := c.shadows[namespace]; ok {
		shadow.Remove(fullKey(namespace, key))
		atomic.AddInt64(&c.evictions, 1)
	}
	if err := c.store.del(ctx, fullKey(namespace, key)); err != nil {
		return errors.AdapterFailure("cache", err)
	}
	return nil
}

// Clear evicts every key tracked in a namespace's shadow. Cluster-backed
// namespaces without a shadow (LFU/TTL policy) rely on the store's own TTL
// expiry rather than an explicit sweep, since the coordinator does not
// track their full keyspace.
func (c *Coordinator) Clear(ctx context.Context, namespace string) error {
	if _, err := c.namespace(namespace); err != nil {
		return err
	}
	if shadow, ok := c.shadows[namespace]; ok {
		for _, k := range shadow.Keys() {
			_ = c.store.del(ctx, k)
		}
		shadow.Purge()
	}
	return nil
}

// Warmup bulk-loads entries into a namespace ahead of expected demand.
func (c *Coordinator) Warmup(ctx context.Context, namespace string, entries map[string][]byte) error {
	return c.PutBulk(ctx, namespace, entries)
}

// Stats summarizes cache performance across all namespaces. UsedBytes is a
// running total of encoded payload sizes written (not netted against
// evictions or overwrites), adequate for capacity trending rather than
// exact accounting.
type Stats struct {
	TotalKeys int
	UsedBytes int64
	MaxBytes  int64
	HitRate   float64
	Evictions int64
}

func (c *Coordinator) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses

	keys := 0
	var maxBytes int64
	for _, shadow := range c.shadows {
		keys += shadow.Len()
	}
	for _, ns := range c.namespaces {
		maxBytes += ns.MaxBytes
	}

	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		TotalKeys: keys,
		UsedBytes: atomic.LoadInt64(&c.usedBytes),
		MaxBytes:  maxBytes,
		HitRate:   hitRate,
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// ClusterInfo reports the backing store's topology.
func (c *Coordinator) ClusterInfo(ctx context.Context) (ClusterInfo, error) {
	info, err := c.store.clusterInfo(ctx)
	if err != nil {
		return ClusterInfo{}, errors.AdapterFailure("cache-cluster", err)
	}
	return info, nil
}

// Healthy writes then reads a sentinel key; success means both write and
// read paths work end to end.
func (c *Coordinator) Healthy(ctx context.Context) bool {
	const sentinelNamespace = "api-responses"
	const sentinelKey = "__health__"
	if err := c.Put(ctx, sentinelNamespace, sentinelKey, []byte("ok")); err != nil {
		return false
	}
	_, found, err := c.Get(ctx, sentinelNamespace, sentinelKey)
	return err == nil && found
}

// Close releases the backing store's resources.
func (c *Coordinator) Close() error {
	return c.store.close()
}

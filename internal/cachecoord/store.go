package cachecoord

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dsrplatform/fleetcore/infrastructure/cache"
)

// ClusterInfo mirrors a Redis cluster's topology, as returned by
// CLUSTER INFO / CLUSTER NODES.
type ClusterInfo struct {
	TotalNodes    int
	Masters       int
	Replicas      int
	State         string
	SlotsAssigned int
}

// store is the backing key/value mechanism behind every namespace
// operation. Two implementations exist: redisStore (production, backed by
// a go-redis ClusterClient) and memoryStore (development/test fallback).
type store interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	del(ctx context.Context, key string) error
	clusterInfo(ctx context.Context) (ClusterInfo, error)
	close() error
}

// redisStore backs every namespace operation with a go-redis ClusterClient.
type redisStore struct {
	client *redis.ClusterClient
}

func newRedisStore(addrs []string) *redisStore {
	return &redisStore{client: redis.NewClusterClient(&redis.ClusterOptions{Addrs: addrs})}
}

func (s *redisStore) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *redisStore) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *redisStore) clusterInfo(ctx context.Context) (ClusterInfo, error) {
	raw, err := s.client.ClusterInfo(ctx).Result()
	if err != nil {
		return ClusterInfo{}, err
	}
	info := parseClusterInfo(raw)

	var masters, replicas int
	_ = s.client.ForEachMaster(ctx, func(ctx context.Context, shard *redis.Client) error {
		masters++
		return nil
	})
	_ = s.client.ForEachShard(ctx, func(ctx context.Context, shard *redis.Client) error {
		replicas++
		return nil
	})
	replicas -= masters
	if replicas < 0 {
		replicas = 0
	}
	info.Masters = masters
	info.Replicas = replicas
	info.TotalNodes = masters + replicas
	return info, nil
}

func (s *redisStore) close() error { return s.client.Close() }

func parseClusterInfo(raw string) ClusterInfo {
	info := ClusterInfo{}
	lines := splitLines(raw)
	for _, line := range lines {
		switch {
		case hasPrefix(line, "cluster_state:"):
			info.State = line[len("cluster_state:"):]
		case hasPrefix(line, "cluster_slots_assigned:"):
			info.SlotsAssigned = atoiSafe(line[len("cluster_slots_assigned:"):])
		}
	}
	return info
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, trimCR(s[start:i]))
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimCR(s[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// memoryStore is the in-process fallback used when no cluster is
// configured, backed by the same TTL-aware cache used elsewhere in the
// ambient stack.
type memoryStore struct {
	c *cache.Cache
}

func newMemoryStore() *memoryStore {
	return &memoryStore{c: cache.NewCache(cache.DefaultConfig())}
}

func (s *memoryStore) get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	return b, true, nil
}

func (s *memoryStore) set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.c.Set(key, value, ttl)
	return nil
}

func (s *memoryStore) del(_ context.Context, key string) error {
	s.c.Invalidate(key)
	return nil
}

func (s *memoryStore) clusterInfo(context.Context) (ClusterInfo, error) {
	return ClusterInfo{TotalNodes: 1, Masters: 1, Replicas: 0, State: "ok", SlotsAssigned: 16384}, nil
}

func (s *memoryStore) close() error { return nil }

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

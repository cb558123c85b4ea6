package cachecoord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionTTLExpiry is SPEC scenario 3: the sessions namespace evicts by
// TTL alone. put("sessions","sid1","u42") must read back before expiry and
// miss after it; 200ms/300ms stand in for the namespace's real 15 minute
// TTL the way the breaker tests stand in 80ms for a 10s cooldown.
func TestSessionTTLExpiry(t *testing.T) {
	ns := []NamespaceConfig{{Name: "sessions", TTL: 200 * time.Millisecond, Eviction: EvictTTL}}
	c, err := New(nil, ns)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "sessions", "sid1", []byte("u42")))

	val, found, err := c.Get(ctx, "sessions", "sid1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "u42", string(val))

	time.Sleep(300 * time.Millisecond)

	_, found, err = c.Get(ctx, "sessions", "sid1")
	require.NoError(t, err)
	assert.False(t, found, "sessions entries must not survive past their TTL")
}

func TestGetUnknownNamespaceErrors(t *testing.T) {
	c, err := New(nil, DefaultNamespaces())
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Get(context.Background(), "does-not-exist", "k")
	assert.Error(t, err)
}

// TestLRUShadowServesWithoutHittingStore covers namespaces configured with
// EvictLRU: a Get after Put must be served from the in-process shadow.
func TestLRUShadowServesWithoutHittingStore(t *testing.T) {
	ns := []NamespaceConfig{{Name: "users", TTL: time.Minute, MaxEntries: 10, Eviction: EvictLRU}}
	c, err := New(nil, ns)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "users", "u1", []byte("alice")))

	val, found, err := c.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", string(val))

	require.NoError(t, c.Evict(ctx, "users", "u1"))
	_, found, err = c.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestCompressionRoundTrips covers analytics/api-responses, the two
// namespaces configured with Compression:true.
func TestCompressionRoundTrips(t *testing.T) {
	ns := []NamespaceConfig{{Name: "analytics", TTL: time.Minute, MaxEntries: 10, Eviction: EvictLRU, Compression: true}}
	c, err := New(nil, ns)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for compressibility")
	require.NoError(t, c.Put(ctx, "analytics", "k1", payload))

	val, found, err := c.Get(ctx, "analytics", "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, val)
}

func TestBulkPutAndGetOmitsMisses(t *testing.T) {
	c, err := New(nil, DefaultNamespaces())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.PutBulk(ctx, "users", map[string][]byte{
		"u1": []byte("alice"),
		"u2": []byte("bob"),
	}))

	out, err := c.GetBulk(ctx, "users", []string{"u1", "u2", "missing"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "alice", string(out["u1"]))
}

func TestHealthyWritesAndReadsSentinel(t *testing.T) {
	c, err := New(nil, DefaultNamespaces())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Healthy(context.Background()))
}

func TestClearPurgesShadowTrackedNamespace(t *testing.T) {
	ns := []NamespaceConfig{{Name: "users", TTL: time.Minute, MaxEntries: 10, Eviction: EvictLRU}}
	c, err := New(nil, ns)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "users", "u1", []byte("alice")))
	require.NoError(t, c.Clear(ctx, "users"))

	_, found, err := c.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

// Package fleetclock provides the monotonic and wall-clock time sources and
// ID minting used throughout the fleet resilience core. Components never
// call time.Now or uuid.New directly so that tests can substitute a
// FakeClock and drive breaker cooldowns, cache TTLs, and health-check
// intervals deterministically.
package fleetclock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the time source every component depends on.
type Clock interface {
	// Now returns the monotonic time used for durations and comparisons
	// (breaker cooldowns, rolling windows, probe intervals).
	Now() time.Time
	// WallNow returns the wall-clock time used for persisted timestamps.
	WallNow() time.Time
}

// System is the production Clock, backed by time.Now.
type System struct{}

func (System) Now() time.Time     { return time.Now() }
func (System) WallNow() time.Time { return time.Now() }

// Default is the process-wide System clock instance.
var Default Clock = System{}

// FakeClock is a manually advanced Clock for deterministic tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a FakeClock starting at t.
func NewFake(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) WallNow() time.Time {
	return f.Now()
}

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// IDGenerator mints opaque, collision-resistant identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator mints RFC 4122 v4 identifiers via google/uuid.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// DefaultIDs is the process-wide UUID-backed generator.
var DefaultIDs IDGenerator = UUIDGenerator{}

// SequentialIDs is a deterministic test double producing ids prefix-0,
// prefix-1, ... in call order.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

func (s *SequentialIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.prefix + "-" + itoa(s.next)
	s.next++
	return id
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

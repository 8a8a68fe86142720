package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingEvictable struct {
	mu    sync.Mutex
	calls int
}

func (c *countingEvictable) EvictExpired(time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1
}

func (c *countingEvictable) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSweeper_SweepsAllTargets(t *testing.T) {
	a := &countingEvictable{}
	b := &countingEvictable{}
	s := NewSweeper(10*time.Millisecond, a, b)

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.callCount() > 0 && b.callCount() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sweeper never ran: a=%d b=%d", a.callCount(), b.callCount())
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	s := NewSweeper(time.Hour, &countingEvictable{})
	s.Start()

	s.Stop()
	assert.NotPanics(t, func() { s.Stop() })
}

func TestSweeper_NoSweepAfterStop(t *testing.T) {
	target := &countingEvictable{}
	s := NewSweeper(10*time.Millisecond, target)
	s.Start()
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	calls := target.callCount()
	time.Sleep(35 * time.Millisecond)
	assert.Equal(t, calls, target.callCount())
}

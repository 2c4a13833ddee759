package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestNotifier() (*Notifier, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(clk.Now)), clk
}

func TestNotifier_KindsAndOrder(t *testing.T) {
	n, _ := newTestNotifier()

	n.Info("one")
	n.Warn("two")
	n.Error("three")

	got := n.Active()
	require.Len(t, got, 3)
	assert.Equal(t, KindInfo, got[0].Kind)
	assert.Equal(t, "two", got[1].Message)
	assert.Equal(t, KindWarning, got[1].Kind)
	assert.Equal(t, KindError, got[2].Kind)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestNotifier_ExpiresAfterTTL(t *testing.T) {
	n, clk := newTestNotifier()

	n.Info("first")
	clk.Advance(3 * time.Second)
	n.Info("second")

	assert.Len(t, n.Active(), 2)

	clk.Advance(time.Second)
	got := n.Active()
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Message)

	clk.Advance(DefaultTTL)
	assert.Empty(t, n.Active())
}

func TestNotifier_Drain(t *testing.T) {
	n, _ := newTestNotifier()
	n.Warn("once")

	assert.Len(t, n.Drain(), 1)
	assert.Empty(t, n.Drain())
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Info("x")
			n.Active()
		}()
	}
	wg.Wait()
	assert.Len(t, n.Active(), 50)
}
